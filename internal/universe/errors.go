package universe

import "errors"

// ErrNotFound is returned when a symbol is not on the watch list.
var ErrNotFound = errors.New("symbol not on watchlist")
