// Package signals computes the per-symbol signal payload a refresh scan
// stores: price, momentum, RSI, moving average and volatility derived from
// quote and historical data.
package signals

import "time"

// HistoryPeriod is the lookback window requested for indicator input.
const HistoryPeriod = "3mo"

const (
	rsiLength      = 14
	smaLength      = 20
	momentumLength = 10
)

// Signal is the computed payload cached per symbol.
type Signal struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency,omitempty"`
	ChangePct   float64   `json:"change_pct"`
	RSI14       *float64  `json:"rsi_14,omitempty"`
	SMA20       *float64  `json:"sma_20,omitempty"`
	Momentum10  *float64  `json:"momentum_10,omitempty"`
	Volatility  *float64  `json:"volatility,omitempty"`
	AboveSMA    *bool     `json:"above_sma,omitempty"`
	HistoryDays int       `json:"history_days"`
	ComputedAt  time.Time `json:"computed_at"`
}
