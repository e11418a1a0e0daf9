package scan

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finwatch/signalscan/internal/cache"
	"github.com/finwatch/signalscan/internal/database"
	"github.com/finwatch/signalscan/internal/events"
	"github.com/finwatch/signalscan/internal/signals"
)

type fakeUniverse struct {
	symbols []string
	err     error
}

func (f *fakeUniverse) ActiveSymbols() ([]string, error) {
	return f.symbols, f.err
}

type fakeComputer struct {
	calls atomic.Int64
	fn    func(ctx context.Context, symbol string) (*signals.Signal, error)
}

func (f *fakeComputer) Compute(ctx context.Context, symbol string) (*signals.Signal, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, symbol)
	}
	return &signals.Signal{Symbol: symbol, Price: 1}, nil
}

type fakeRemote struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
	err     error
	batches [][]string
}

func (f *fakeRemote) FetchBatch(_ context.Context, _ cache.Kind, keys []string) (map[string]cache.Entry, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), keys...))
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	found := make(map[string]cache.Entry)
	for _, key := range keys {
		if entry, ok := f.entries[key]; ok {
			found[key] = entry
		}
	}
	return found, nil
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return cache.NewStore(db.Conn(), zerolog.Nop())
}

// runScan starts a scan and drains the whole finite event stream.
func runScan(t *testing.T, o *Orchestrator, ctx context.Context) []events.ScanProgressData {
	t.Helper()

	sink := NewChannelSink(16)
	scanID, err := o.Start(ctx, sink)
	require.NoError(t, err)
	require.NotEmpty(t, scanID)

	var received []events.ScanProgressData
	for event := range sink.Events() {
		assert.Equal(t, scanID, event.ScanID)
		received = append(received, event)
	}
	return received
}

func TestScanMixedOutcomes(t *testing.T) {
	store := newTestStore(t)
	store.Set(cache.KindSignal, "B", &signals.Signal{Symbol: "B", Price: 2})

	computer := &fakeComputer{fn: func(_ context.Context, symbol string) (*signals.Signal, error) {
		if symbol == "A" {
			return nil, errors.New("upstream timeout")
		}
		return &signals.Signal{Symbol: symbol, Price: 3}, nil
	}}

	o := NewOrchestrator(
		&fakeUniverse{symbols: []string{"A", "B", "C"}},
		computer, store, nil,
		Config{Workers: 2, BatchSize: 50},
		zerolog.Nop(),
	)

	received := runScan(t, o, context.Background())
	require.NotEmpty(t, received)

	first := received[0]
	assert.Equal(t, "started", first.Status)
	assert.Equal(t, 3, first.Total)

	final := received[len(received)-1]
	assert.Equal(t, "done", final.Status)
	assert.Equal(t, 3, final.Scanned)
	assert.Equal(t, 3, final.Total)
	assert.Equal(t, 1, final.Skipped)
	assert.Equal(t, 1, final.Errors)
	require.NotNil(t, final.CompletedAt)

	// The successful symbol is cached, the failed one is left untouched.
	_, status := store.Get(cache.KindSignal, "C")
	assert.Equal(t, cache.Hit, status)
	_, status = store.Get(cache.KindSignal, "A")
	assert.Equal(t, cache.Miss, status)
}

func TestScanEmptyUniverse(t *testing.T) {
	o := NewOrchestrator(
		&fakeUniverse{},
		&fakeComputer{}, newTestStore(t), nil,
		Config{Workers: 4, BatchSize: 50},
		zerolog.Nop(),
	)

	received := runScan(t, o, context.Background())
	require.Len(t, received, 2)

	assert.Equal(t, "started", received[0].Status)
	assert.Equal(t, 0, received[0].Total)
	assert.Equal(t, "done", received[1].Status)
	assert.Equal(t, 0, received[1].Scanned)
	assert.Equal(t, 0, received[1].Total)
	require.NotNil(t, received[1].CompletedAt)
}

func TestScanProgressBatchingAndMonotonicity(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E"}

	o := NewOrchestrator(
		&fakeUniverse{symbols: symbols},
		&fakeComputer{}, newTestStore(t), nil,
		Config{Workers: 3, BatchSize: 2},
		zerolog.Nop(),
	)

	received := runScan(t, o, context.Background())

	var progresses []events.ScanProgressData
	prev := 0
	for _, event := range received {
		assert.GreaterOrEqual(t, event.Scanned, prev, "scanned must be non-decreasing")
		assert.LessOrEqual(t, event.Scanned, len(symbols))
		prev = event.Scanned
		if event.Status == "progress" {
			progresses = append(progresses, event)
		}
	}

	// Batch size 2 over 5 symbols: progress at 2, 4 and the final 5th.
	require.Len(t, progresses, 3)
	assert.Equal(t, 2, progresses[0].Scanned)
	assert.Equal(t, 4, progresses[1].Scanned)
	assert.Equal(t, 5, progresses[2].Scanned)

	final := received[len(received)-1]
	assert.Equal(t, "done", final.Status)
	assert.Equal(t, len(symbols), final.Scanned)
}

func TestScanSingleFlight(t *testing.T) {
	release := make(chan struct{})
	computer := &fakeComputer{fn: func(_ context.Context, symbol string) (*signals.Signal, error) {
		<-release
		return &signals.Signal{Symbol: symbol}, nil
	}}

	o := NewOrchestrator(
		&fakeUniverse{symbols: []string{"A", "B"}},
		computer, newTestStore(t), nil,
		Config{Workers: 1, BatchSize: 50},
		zerolog.Nop(),
	)

	sink := NewChannelSink(16)
	_, err := o.Start(context.Background(), sink)
	require.NoError(t, err)
	assert.True(t, o.Active())

	_, err = o.Start(context.Background(), NewChannelSink(16))
	assert.ErrorIs(t, err, ErrScanActive)

	close(release)
	for range sink.Events() {
	}

	// The flag clears once the scan finishes, allowing the next one.
	assert.Eventually(t, func() bool { return !o.Active() }, time.Second, 5*time.Millisecond)

	sink2 := NewChannelSink(16)
	_, err = o.Start(context.Background(), sink2)
	require.NoError(t, err)
	for range sink2.Events() {
	}
}

func TestScanUniverseErrorRejectsBeforeWork(t *testing.T) {
	o := NewOrchestrator(
		&fakeUniverse{err: errors.New("db locked")},
		&fakeComputer{}, newTestStore(t), nil,
		Config{Workers: 2, BatchSize: 50},
		zerolog.Nop(),
	)

	_, err := o.Start(context.Background(), NewChannelSink(1))
	require.Error(t, err)
	assert.False(t, o.Active())
}

func TestScanCancellationStopsClaimsButTerminates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	store := newTestStore(t)
	computer := &fakeComputer{fn: func(cctx context.Context, symbol string) (*signals.Signal, error) {
		// The first computation aborts the scan mid-flight, then behaves
		// like the real clients: a dead context fails the fetch.
		cancel()
		if err := cctx.Err(); err != nil {
			return nil, err
		}
		return &signals.Signal{Symbol: symbol, Price: 1}, nil
	}}

	symbols := make([]string, 10)
	for i := range symbols {
		symbols[i] = string(rune('A' + i))
	}

	o := NewOrchestrator(
		&fakeUniverse{symbols: symbols},
		computer, store, nil,
		Config{Workers: 1, BatchSize: 50},
		zerolog.Nop(),
	)

	received := runScan(t, o, ctx)
	require.NotEmpty(t, received)

	final := received[len(received)-1]
	assert.Equal(t, "done", final.Status)
	assert.Less(t, final.Scanned, len(symbols))
	require.NotNil(t, final.CompletedAt)

	// No new symbols were claimed after cancellation was observed, but the
	// in-flight task ran to completion and its result was cached.
	assert.Equal(t, int64(1), computer.calls.Load())
	assert.Equal(t, 0, final.Errors)
	_, status := store.Get(cache.KindSignal, "A")
	assert.Equal(t, cache.Hit, status)
}

func TestScanHydratesFromSlowTier(t *testing.T) {
	store := newTestStore(t)

	fresh, err := json.Marshal(&signals.Signal{Symbol: "B", Price: 7})
	require.NoError(t, err)

	remote := &fakeRemote{entries: map[string]cache.Entry{
		"B": {Value: fresh, WrittenAt: time.Now()},
		// C's remote record is stale and must be recomputed.
		"C": {Value: fresh, WrittenAt: time.Now().Add(-2 * cache.TTLSignal)},
	}}
	computer := &fakeComputer{}

	o := NewOrchestrator(
		&fakeUniverse{symbols: []string{"A", "B", "C"}},
		computer, store, remote,
		Config{Workers: 2, BatchSize: 50},
		zerolog.Nop(),
	)

	received := runScan(t, o, context.Background())
	final := received[len(received)-1]

	assert.Equal(t, 3, final.Scanned)
	assert.Equal(t, 1, final.Skipped) // B came from the slow tier
	assert.Equal(t, 0, final.Errors)
	assert.Equal(t, int64(2), computer.calls.Load()) // A and C

	require.Len(t, remote.batches, 1)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, remote.batches[0])
}

func TestScanRemoteBatchesRespectBatchSize(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E"}

	remote := &fakeRemote{}
	o := NewOrchestrator(
		&fakeUniverse{symbols: symbols},
		&fakeComputer{}, newTestStore(t), remote,
		Config{Workers: 2, BatchSize: 2},
		zerolog.Nop(),
	)

	runScan(t, o, context.Background())

	require.Len(t, remote.batches, 3)
	assert.Len(t, remote.batches[0], 2)
	assert.Len(t, remote.batches[1], 2)
	assert.Len(t, remote.batches[2], 1)
}

func TestScanRemoteFailureDegradesToMiss(t *testing.T) {
	computer := &fakeComputer{}
	remote := &fakeRemote{err: errors.New("bucket unreachable")}

	o := NewOrchestrator(
		&fakeUniverse{symbols: []string{"A", "B"}},
		computer, newTestStore(t), remote,
		Config{Workers: 2, BatchSize: 50},
		zerolog.Nop(),
	)

	received := runScan(t, o, context.Background())
	final := received[len(received)-1]

	assert.Equal(t, 2, final.Scanned)
	assert.Equal(t, 0, final.Skipped)
	assert.Equal(t, 0, final.Errors)
	assert.Equal(t, int64(2), computer.calls.Load())
}
