// Package scan drives the watch-list refresh pipeline: a fixed pool of
// workers walks the symbol universe behind a shared atomic cursor, skips
// symbols whose cached signal is still fresh, recomputes the rest through
// the admission queues, and streams batched progress to a sink.
package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finwatch/signalscan/internal/cache"
	"github.com/finwatch/signalscan/internal/events"
	"github.com/finwatch/signalscan/internal/signals"
)

// ErrScanActive is returned when a scan is requested while one is running.
var ErrScanActive = errors.New("a scan is already running")

// Universe supplies the symbols a scan walks. Exclusions are applied by the
// implementation, so the returned slice is exactly the scan's total.
type Universe interface {
	ActiveSymbols() ([]string, error)
}

// Computer produces the signal payload for one symbol.
type Computer interface {
	Compute(ctx context.Context, symbol string) (*signals.Signal, error)
}

// ProgressSink receives a scan's ordered progress events and is closed
// exactly once after the terminal event.
type ProgressSink interface {
	Emit(events.ScanProgressData)
	Close()
}

// Orchestrator runs refresh scans. At most one scan is active per instance;
// concurrent start requests are rejected, never interleaved.
type Orchestrator struct {
	universe Universe
	computer Computer
	store    *cache.Store
	remote   cache.RemoteStore // nil when no slow tier is configured

	workers   int
	batchSize int

	active atomic.Bool
	log    zerolog.Logger
	now    func() time.Time
}

// Config carries the orchestrator's tunables.
type Config struct {
	Workers   int
	BatchSize int
}

// NewOrchestrator creates a scan orchestrator. remote may be nil.
func NewOrchestrator(
	universe Universe,
	computer Computer,
	store *cache.Store,
	remote cache.RemoteStore,
	cfg Config,
	log zerolog.Logger,
) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	return &Orchestrator{
		universe:  universe,
		computer:  computer,
		store:     store,
		remote:    remote,
		workers:   cfg.Workers,
		batchSize: cfg.BatchSize,
		log:       log.With().Str("component", "scan").Logger(),
		now:       time.Now,
	}
}

// Active reports whether a scan is currently running.
func (o *Orchestrator) Active() bool {
	return o.active.Load()
}

// Start begins a scan in the background and returns its id. It returns
// ErrScanActive when a scan is already running, and the universe error when
// the symbol set cannot be loaded; in both cases no work starts and the sink
// is untouched. Cancelling ctx stops the scan from claiming new symbols;
// in-flight computations finish and the terminal event is still emitted.
func (o *Orchestrator) Start(ctx context.Context, sink ProgressSink) (string, error) {
	if !o.active.CompareAndSwap(false, true) {
		return "", ErrScanActive
	}

	symbols, err := o.universe.ActiveSymbols()
	if err != nil {
		o.active.Store(false)
		return "", err
	}

	scanID := uuid.New().String()
	go func() {
		defer o.active.Store(false)
		o.run(ctx, scanID, symbols, sink)
	}()

	return scanID, nil
}

type outcome int

const (
	outcomeComputed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o *Orchestrator) run(ctx context.Context, scanID string, symbols []string, sink ProgressSink) {
	defer sink.Close()

	total := len(symbols)
	started := o.now()
	log := o.log.With().Str("scan_id", scanID).Logger()
	log.Info().Int("total", total).Int("workers", o.workers).Msg("Scan started")

	sink.Emit(events.ScanProgressData{ScanID: scanID, Status: "started", Total: total})

	if total > 0 {
		o.hydrateFromRemote(ctx, symbols)
	}

	var cursor atomic.Int64
	results := make(chan outcome, o.workers)

	// Cancellation only stops workers from claiming more symbols. A task
	// that already claimed its symbol runs on a detached context, so its
	// fetches complete and its result still lands in the cache.
	taskCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				i := int(cursor.Add(1)) - 1
				if i >= total {
					return
				}
				results <- o.process(taskCtx, log, symbols[i])
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var scanned, skipped, errCount int
	for result := range results {
		scanned++
		switch result {
		case outcomeSkipped:
			skipped++
		case outcomeFailed:
			errCount++
		}

		if scanned%o.batchSize == 0 || scanned == total {
			sink.Emit(events.ScanProgressData{
				ScanID:  scanID,
				Status:  "progress",
				Scanned: scanned,
				Total:   total,
				Skipped: skipped,
				Errors:  errCount,
			})
		}
	}

	completedAt := o.now().UTC()
	sink.Emit(events.ScanProgressData{
		ScanID:      scanID,
		Status:      "done",
		Scanned:     scanned,
		Total:       total,
		Skipped:     skipped,
		Errors:      errCount,
		CompletedAt: &completedAt,
	})

	log.Info().
		Int("scanned", scanned).
		Int("skipped", skipped).
		Int("errors", errCount).
		Dur("elapsed", o.now().Sub(started)).
		Bool("aborted", ctx.Err() != nil).
		Msg("Scan finished")
}

// process resolves one symbol: fresh cache entry is a skip, anything else is
// a recompute. Failures are logged and counted; the symbol is left
// un-refreshed this cycle.
func (o *Orchestrator) process(ctx context.Context, log zerolog.Logger, symbol string) outcome {
	if _, status := o.store.Get(cache.KindSignal, symbol); status == cache.Hit {
		return outcomeSkipped
	}

	signal, err := o.computer.Compute(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Signal computation failed")
		return outcomeFailed
	}

	o.store.Set(cache.KindSignal, symbol, signal)
	return outcomeComputed
}

// hydrateFromRemote copies slow-tier signal records for fast-tier misses
// into the fast tier, in batches, before the workers start. Records keep
// their original timestamp, so stale ones are recomputed anyway. Remote
// failures degrade to a miss for the whole batch.
func (o *Orchestrator) hydrateFromRemote(ctx context.Context, symbols []string) {
	if o.remote == nil {
		return
	}

	var misses []string
	for _, symbol := range symbols {
		if _, status := o.store.Get(cache.KindSignal, symbol); status != cache.Hit {
			misses = append(misses, symbol)
		}
	}

	for start := 0; start < len(misses); start += o.batchSize {
		if ctx.Err() != nil {
			return
		}
		end := start + o.batchSize
		if end > len(misses) {
			end = len(misses)
		}

		entries, err := o.remote.FetchBatch(ctx, cache.KindSignal, misses[start:end])
		if err != nil {
			o.log.Warn().Err(err).Msg("Slow tier unavailable, treating batch as miss")
			continue
		}
		for key, entry := range entries {
			o.store.SetRaw(cache.KindSignal, key, entry.Value, entry.WrittenAt)
		}
	}
}
