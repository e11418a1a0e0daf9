package cache

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finwatch/signalscan/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return NewStore(db.Conn(), zerolog.Nop())
}

func TestStoreSetGet(t *testing.T) {
	store := newTestStore(t)

	store.Set(KindQuote, "AAPL", map[string]float64{"price": 187.5})

	raw, status := store.Get(KindQuote, "AAPL")
	assert.Equal(t, Hit, status)

	var decoded map[string]float64
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 187.5, decoded["price"])
}

func TestStoreMissForAbsentKey(t *testing.T) {
	store := newTestStore(t)

	raw, status := store.Get(KindQuote, "MSFT")
	assert.Nil(t, raw)
	assert.Equal(t, Miss, status)
	assert.True(t, status.IsMiss())
}

func TestStoreOverwriteReplacesValue(t *testing.T) {
	store := newTestStore(t)

	store.Set(KindSignal, "AAPL", map[string]float64{"rsi": 40})
	store.Set(KindSignal, "AAPL", map[string]float64{"rsi": 65})

	var decoded map[string]float64
	status := store.GetJSON(KindSignal, "AAPL", &decoded)
	assert.Equal(t, Hit, status)
	assert.Equal(t, float64(65), decoded["rsi"])
}

func TestStoreKindsAreIndependent(t *testing.T) {
	store := newTestStore(t)

	store.Set(KindQuote, "AAPL", map[string]string{"tier": "quote"})

	_, status := store.Get(KindSignal, "AAPL")
	assert.Equal(t, Miss, status)
}

func TestStoreTTLExpiry(t *testing.T) {
	store := newTestStore(t)

	base := time.Now()
	store.now = func() time.Time { return base }
	store.Set(KindQuote, "AAPL", map[string]float64{"price": 100})

	// Just inside the TTL the value is still fresh.
	store.now = func() time.Time { return base.Add(TTLQuote - time.Second) }
	_, status := store.Get(KindQuote, "AAPL")
	assert.Equal(t, Hit, status)

	// At the TTL boundary the value has expired.
	store.now = func() time.Time { return base.Add(TTLQuote) }
	_, status = store.Get(KindQuote, "AAPL")
	assert.Equal(t, MissExpired, status)
}

func TestStorePerKindTTL(t *testing.T) {
	store := newTestStore(t)

	base := time.Now()
	store.now = func() time.Time { return base }
	store.Set(KindQuote, "AAPL", map[string]float64{"price": 100})
	store.Set(KindHistory, "AAPL", []float64{1, 2, 3})

	// An hour later the quote is stale but the history survives.
	store.now = func() time.Time { return base.Add(time.Hour) }

	_, status := store.Get(KindQuote, "AAPL")
	assert.Equal(t, MissExpired, status)

	_, status = store.Get(KindHistory, "AAPL")
	assert.Equal(t, Hit, status)
}

func TestStoreMalformedPayloadIsMissError(t *testing.T) {
	store := newTestStore(t)

	_, err := store.db.Exec(
		"INSERT INTO signal_cache (kind, key, value, written_at) VALUES (?, ?, ?, ?)",
		string(KindQuote), "BAD", []byte("{not json"), time.Now().Unix(),
	)
	require.NoError(t, err)

	raw, status := store.Get(KindQuote, "BAD")
	assert.Nil(t, raw)
	assert.Equal(t, MissError, status)
	assert.True(t, status.IsMiss())
}

func TestStoreSetRawPreservesTimestamp(t *testing.T) {
	store := newTestStore(t)

	base := time.Now()
	store.now = func() time.Time { return base }

	// A record rehydrated from the slow tier keeps its original age, so a
	// value written TTL-1s ago expires a second later, not a full TTL later.
	writtenAt := base.Add(-(TTLSignal - time.Second))
	store.SetRaw(KindSignal, "AAPL", json.RawMessage(`{"rsi":55}`), writtenAt)

	_, status := store.Get(KindSignal, "AAPL")
	assert.Equal(t, Hit, status)

	store.now = func() time.Time { return base.Add(2 * time.Second) }
	_, status = store.Get(KindSignal, "AAPL")
	assert.Equal(t, MissExpired, status)
}

func TestStoreSetRawNilIsNoOp(t *testing.T) {
	store := newTestStore(t)

	store.SetRaw(KindQuote, "AAPL", nil, time.Now())

	_, status := store.Get(KindQuote, "AAPL")
	assert.Equal(t, Miss, status)
}

func TestStoreUnmarshalableValueSkipsWrite(t *testing.T) {
	store := newTestStore(t)

	store.Set(KindQuote, "AAPL", make(chan int))

	_, status := store.Get(KindQuote, "AAPL")
	assert.Equal(t, Miss, status)
}

func TestStoreDeleteExpired(t *testing.T) {
	store := newTestStore(t)

	base := time.Now()
	store.now = func() time.Time { return base.Add(-2 * TTLQuote) }
	store.Set(KindQuote, "OLD", map[string]float64{"price": 1})

	store.now = func() time.Time { return base }
	store.Set(KindQuote, "FRESH", map[string]float64{"price": 2})

	deleted, err := store.DeleteExpired(KindQuote)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, status := store.Get(KindQuote, "FRESH")
	assert.Equal(t, Hit, status)
	_, status = store.Get(KindQuote, "OLD")
	assert.Equal(t, Miss, status)
}

func TestReadStatusString(t *testing.T) {
	assert.Equal(t, "hit", Hit.String())
	assert.Equal(t, "miss", Miss.String())
	assert.Equal(t, "miss_expired", MissExpired.String())
	assert.Equal(t, "miss_error", MissError.String())
}

func TestKindTTL(t *testing.T) {
	assert.Equal(t, TTLQuote, KindQuote.TTL())
	assert.Equal(t, TTLHistory, KindHistory.TTL())
	assert.Equal(t, TTLSignal, KindSignal.TTL())
	assert.Equal(t, TTLQuote, Kind("unknown").TTL())
}
