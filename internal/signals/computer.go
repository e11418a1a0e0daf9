package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/finwatch/signalscan/internal/cache"
	"github.com/finwatch/signalscan/internal/clients"
	"github.com/finwatch/signalscan/internal/clients/yahoo"
	"github.com/finwatch/signalscan/internal/queue"
	"github.com/finwatch/signalscan/pkg/formulas"
)

// QuoteSource provides current quotes for symbols.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*yahoo.Quote, error)
}

// HistorySource provides historical daily prices for symbols.
type HistorySource interface {
	GetHistoricalPrices(ctx context.Context, symbol, period string) ([]yahoo.HistoricalPrice, error)
}

// Computer builds signal payloads. Quote and history fetches each pass
// through their own admission queue so a scan with many workers cannot
// exceed the per-upstream concurrency limits, and both consult the fast
// cache tier before going upstream.
type Computer struct {
	quotes  QuoteSource
	history HistorySource

	quoteQueue   *queue.Queue[*yahoo.Quote]
	historyQueue *queue.Queue[[]yahoo.HistoricalPrice]

	store *cache.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewComputer creates a signal computer.
func NewComputer(
	quotes QuoteSource,
	history HistorySource,
	quoteQueue *queue.Queue[*yahoo.Quote],
	historyQueue *queue.Queue[[]yahoo.HistoricalPrice],
	store *cache.Store,
	log zerolog.Logger,
) *Computer {
	return &Computer{
		quotes:       quotes,
		history:      history,
		quoteQueue:   quoteQueue,
		historyQueue: historyQueue,
		store:        store,
		log:          log.With().Str("component", "signals").Logger(),
		now:          time.Now,
	}
}

// Compute produces the signal payload for a symbol. A quote failure fails
// the computation; a permanently missing history degrades to a quote-only
// payload with the indicators left unset.
func (c *Computer) Compute(ctx context.Context, symbol string) (*Signal, error) {
	quote, err := c.fetchQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}

	signal := &Signal{
		Symbol:     symbol,
		Price:      quote.Price,
		Currency:   quote.Currency,
		ChangePct:  quote.ChangePercent,
		ComputedAt: c.now().UTC(),
	}

	history, err := c.fetchHistory(ctx, symbol)
	if err != nil {
		if !clients.IsPermanent(err) {
			return nil, fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
		}
		// Symbols with no history still get a quote-only payload.
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("No history available, computing quote-only signal")
		return signal, nil
	}

	closes := make([]float64, 0, len(history))
	for _, bar := range history {
		closes = append(closes, bar.Close)
	}
	signal.HistoryDays = len(closes)

	signal.RSI14 = formulas.RSI(closes, rsiLength)
	signal.SMA20 = formulas.SMA(closes, smaLength)
	signal.Momentum10 = formulas.Momentum(closes, momentumLength)

	if returns := formulas.CalculateReturns(closes); len(returns) > 0 {
		vol := formulas.AnnualizedVolatility(returns)
		signal.Volatility = &vol
	}

	if signal.SMA20 != nil {
		above := quote.Price > *signal.SMA20
		signal.AboveSMA = &above
	}

	return signal, nil
}

func (c *Computer) fetchQuote(ctx context.Context, symbol string) (*yahoo.Quote, error) {
	var cached yahoo.Quote
	if c.store.GetJSON(cache.KindQuote, symbol, &cached) == cache.Hit {
		return &cached, nil
	}

	quote, err := c.quoteQueue.Do(ctx, func(ctx context.Context) (*yahoo.Quote, error) {
		return c.quotes.GetQuote(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}

	c.store.Set(cache.KindQuote, symbol, quote)
	return quote, nil
}

func (c *Computer) fetchHistory(ctx context.Context, symbol string) ([]yahoo.HistoricalPrice, error) {
	var cached []yahoo.HistoricalPrice
	if c.store.GetJSON(cache.KindHistory, symbol, &cached) == cache.Hit {
		return cached, nil
	}

	history, err := c.historyQueue.Do(ctx, func(ctx context.Context) ([]yahoo.HistoricalPrice, error) {
		return c.history.GetHistoricalPrices(ctx, symbol, HistoryPeriod)
	})
	if err != nil {
		return nil, err
	}

	c.store.Set(cache.KindHistory, symbol, history)
	return history, nil
}
