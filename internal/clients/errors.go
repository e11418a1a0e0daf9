// Package clients holds the shared error taxonomy for external data sources.
//
// A fetch either fails transiently (rate limit, timeout, upstream 5xx) and is
// safe to surface as a per-symbol error without aborting a scan, or
// permanently (the symbol is genuinely invalid) in which case the caller may
// choose to exclude the symbol from future scans.
package clients

import (
	"errors"
	"fmt"
)

// TransientError marks a fetch failure that may succeed on a later attempt.
type TransientError struct {
	Symbol string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch failure for %s: %v", e.Symbol, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a symbol the source will never resolve.
type PermanentError struct {
	Symbol string
	Err    error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent fetch failure for %s: %v", e.Symbol, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
