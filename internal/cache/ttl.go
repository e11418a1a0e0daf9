package cache

import "time"

// Kind identifies a class of cached data. TTL is a property of the kind, not
// of individual records, so tightening a TTL re-judges existing records on
// their next read without rewriting them.
type Kind string

const (
	// KindQuote - current prices, short-lived
	KindQuote Kind = "quote"
	// KindHistory - per-symbol daily history, changes once a day
	KindHistory Kind = "history"
	// KindSignal - derived signal payloads, the refresh pipeline's output
	KindSignal Kind = "signal"
)

// TTLs per data kind.
const (
	TTLQuote   = 10 * time.Minute
	TTLHistory = 24 * time.Hour
	TTLSignal  = time.Hour
)

// TTL returns the time-to-live for the kind. Unknown kinds get the shortest
// TTL so stale data is never trusted by accident.
func (k Kind) TTL() time.Duration {
	switch k {
	case KindQuote:
		return TTLQuote
	case KindHistory:
		return TTLHistory
	case KindSignal:
		return TTLSignal
	default:
		return TTLQuote
	}
}
