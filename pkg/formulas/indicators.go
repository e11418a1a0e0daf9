// Package formulas provides the technical indicator and statistics helpers
// used to build signal payloads.
package formulas

import (
	"github.com/markcheno/go-talib"
)

// RSI calculates the Relative Strength Index over the given period.
//
// RSI Formula:
//   RSI = 100 - (100 / (1 + RS))
//   where RS = Average Gain / Average Loss over N periods
//
// Returns the current RSI value (0-100) or nil if insufficient data.
func RSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)
	return lastValid(rsi)
}

// SMA calculates the simple moving average over the given period.
// Returns the current value or nil if insufficient data.
func SMA(closes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}

	sma := talib.Sma(closes, length)
	return lastValid(sma)
}

// Momentum calculates the percentage change of the close over the given
// lookback. Returns nil if insufficient data or the base price is zero.
func Momentum(closes []float64, lookback int) *float64 {
	if len(closes) < lookback+1 {
		return nil
	}

	base := closes[len(closes)-1-lookback]
	if base == 0 {
		return nil
	}

	result := (closes[len(closes)-1] - base) / base * 100
	return &result
}

// lastValid returns the last non-NaN value of a talib output series.
func lastValid(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	last := series[len(series)-1]
	if isNaN(last) {
		return nil
	}
	return &last
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
