// Package yahoo provides a Yahoo Finance market-data client.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/finwatch/signalscan/internal/clients"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client is a Yahoo Finance API client.
//
// The client performs no rate limiting itself; calls are expected to be
// admitted through a queue.Queue so that the concurrency cap is owned by the
// caller, one queue per dependency class.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// NewClientWithBaseURL creates a client against a custom endpoint (tests).
func NewClientWithBaseURL(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	c := NewClient(timeout, log)
	c.baseURL = baseURL
	return c
}

// chartMeta is the meta block of the v8 chart API response.
type chartMeta struct {
	Currency           string  `json:"currency"`
	Symbol             string  `json:"symbol"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	PreviousClose      float64 `json:"chartPreviousClose"`
	MarketState        string  `json:"marketState"`
}

// chartQuote holds the OHLCV arrays of the chart response.
type chartQuote struct {
	Open   []float64 `json:"open"`
	High   []float64 `json:"high"`
	Low    []float64 `json:"low"`
	Close  []float64 `json:"close"`
	Volume []int64   `json:"volume"`
}

type chartAdjClose struct {
	AdjClose []float64 `json:"adjclose"`
}

type chartIndicators struct {
	Quote    []chartQuote    `json:"quote"`
	AdjClose []chartAdjClose `json:"adjclose"`
}

type chartResult struct {
	Meta       chartMeta       `json:"meta"`
	Timestamp  []int64         `json:"timestamp"`
	Indicators chartIndicators `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// chartResponse is the v8 chart API envelope shared by quote and history.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

// GetQuote fetches the current quote for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	result, err := c.chart(ctx, symbol, "1d", "1d")
	if err != nil {
		return nil, err
	}

	meta := result.Meta
	if meta.RegularMarketPrice <= 0 {
		return nil, &clients.TransientError{Symbol: symbol, Err: fmt.Errorf("no market price in response")}
	}

	changePct := 0.0
	if meta.PreviousClose > 0 {
		changePct = ((meta.RegularMarketPrice - meta.PreviousClose) / meta.PreviousClose) * 100
	}

	return &Quote{
		Symbol:        symbol,
		Price:         meta.RegularMarketPrice,
		PrevClose:     meta.PreviousClose,
		Currency:      meta.Currency,
		MarketState:   meta.MarketState,
		RetrievedAt:   time.Now(),
		ChangePercent: changePct,
	}, nil
}

// GetHistoricalPrices fetches daily OHLCV data for a symbol.
//
// Supports ranges: 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max
func (c *Client) GetHistoricalPrices(ctx context.Context, symbol, period string) ([]HistoricalPrice, error) {
	result, err := c.chart(ctx, symbol, "1d", period)
	if err != nil {
		return nil, err
	}

	timestamps := result.Timestamp
	if len(result.Indicators.Quote) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No quote data in response")
		return []HistoricalPrice{}, nil
	}

	quote := result.Indicators.Quote[0]

	var adjCloseData []float64
	if len(result.Indicators.AdjClose) > 0 {
		adjCloseData = result.Indicators.AdjClose[0].AdjClose
	}

	var prices []HistoricalPrice
	for i := range timestamps {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}

		// Yahoo sometimes returns null rows
		if quote.Open[i] == 0 && quote.High[i] == 0 && quote.Low[i] == 0 && quote.Close[i] == 0 {
			continue
		}

		adjClose := quote.Close[i]
		if i < len(adjCloseData) && adjCloseData[i] != 0 {
			adjClose = adjCloseData[i]
		}

		volume := int64(0)
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}

		prices = append(prices, HistoricalPrice{
			Date:     time.Unix(timestamps[i], 0),
			Open:     quote.Open[i],
			High:     quote.High[i],
			Low:      quote.Low[i],
			Close:    quote.Close[i],
			Volume:   volume,
			AdjClose: adjClose,
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("period", period).
		Int("count", len(prices)).
		Msg("Fetched historical prices")

	return prices, nil
}

// chart calls the v8 chart endpoint and classifies failures.
func (c *Client) chart(ctx context.Context, symbol, interval, period string) (*chartResult, error) {
	params := url.Values{}
	params.Add("interval", interval)
	params.Add("range", period)

	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Network errors and timeouts are retryable on a later scan
		return nil, &clients.TransientError{Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("yahoo returned status %d: %s", resp.StatusCode, string(body))

		if resp.StatusCode == http.StatusNotFound {
			return nil, &clients.PermanentError{Symbol: symbol, Err: statusErr}
		}
		// Rate limits and upstream 5xx are transient
		return nil, &clients.TransientError{Symbol: symbol, Err: statusErr}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &clients.TransientError{Symbol: symbol, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &clients.TransientError{Symbol: symbol, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if apiErr := result.Chart.Error; apiErr != nil {
		wrapped := fmt.Errorf("yahoo API error %s: %s", apiErr.Code, apiErr.Description)
		if apiErr.Code == "Not Found" {
			return nil, &clients.PermanentError{Symbol: symbol, Err: wrapped}
		}
		return nil, &clients.TransientError{Symbol: symbol, Err: wrapped}
	}

	if len(result.Chart.Result) == 0 {
		return nil, &clients.PermanentError{Symbol: symbol, Err: fmt.Errorf("no chart data returned")}
	}

	return &result.Chart.Result[0], nil
}
