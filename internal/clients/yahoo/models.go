package yahoo

import "time"

// Quote represents a point-in-time market quote
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PrevClose     float64   `json:"prev_close"`
	Currency      string    `json:"currency,omitempty"`
	MarketState   string    `json:"market_state,omitempty"`
	RetrievedAt   time.Time `json:"retrieved_at"`
	ChangePercent float64   `json:"change_percent"`
}

// HistoricalPrice represents a single OHLCV data point
type HistoricalPrice struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
	AdjClose float64   `json:"adj_close"`
}
