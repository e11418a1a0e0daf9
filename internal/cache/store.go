// Package cache implements the tiered cache consulted before any external
// fetch: a fast local sqlite tier with per-kind TTLs, and an optional remote
// slow tier used for batched fallback on fast-tier misses.
//
// The cache must never be the reason a request fails: every read or write
// error is logged and degraded to a miss / no-op. Staleness by failure beats
// hard failure.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ReadStatus classifies a fast-tier read. The three miss variants behave
// identically for callers; they exist so error-driven misses stay observable.
type ReadStatus int

const (
	// Hit - a fresh value was found.
	Hit ReadStatus = iota
	// Miss - no record exists for the key.
	Miss
	// MissExpired - a record exists but its TTL has elapsed.
	MissExpired
	// MissError - a read or decode failure was swallowed and treated as a miss.
	MissError
)

// IsMiss reports whether the status is any of the miss variants.
func (s ReadStatus) IsMiss() bool {
	return s != Hit
}

func (s ReadStatus) String() string {
	switch s {
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	case MissExpired:
		return "miss_expired"
	case MissError:
		return "miss_error"
	default:
		return "unknown"
	}
}

// Store is the fast tier: one record per (kind, key), value stored as a JSON
// blob with its write timestamp. Writes always go here and only here; the
// slow tier is populated by a separate ingestion path.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewStore creates a fast-tier store over an opened cache database.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "cache").Logger(),
		now: time.Now,
	}
}

// Get returns the raw value for (kind, key) if present and fresh per the
// kind's TTL. Any storage failure is logged and reported as MissError.
func (s *Store) Get(kind Kind, key string) (json.RawMessage, ReadStatus) {
	var value []byte
	var writtenAt int64

	err := s.db.QueryRow(
		"SELECT value, written_at FROM signal_cache WHERE kind = ? AND key = ?",
		string(kind), key,
	).Scan(&value, &writtenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Miss
	}
	if err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Str("key", key).Msg("Cache read failed, treating as miss")
		return nil, MissError
	}

	if s.now().Sub(time.Unix(writtenAt, 0)) >= kind.TTL() {
		return nil, MissExpired
	}

	if !json.Valid(value) {
		// A malformed payload behaves exactly like absence.
		s.log.Warn().Str("kind", string(kind)).Str("key", key).Msg("Malformed cache payload, treating as miss")
		return nil, MissError
	}

	return json.RawMessage(value), Hit
}

// GetJSON reads (kind, key) and unmarshals a fresh value into dest.
// Decode failures degrade to MissError.
func (s *Store) GetJSON(kind Kind, key string, dest interface{}) ReadStatus {
	raw, status := s.Get(kind, key)
	if status != Hit {
		return status
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Str("key", key).Msg("Cache payload decode failed, treating as miss")
		return MissError
	}
	return Hit
}

// Set writes the value for (kind, key) with a fresh timestamp, atomically
// replacing any prior record. Failures are logged and swallowed.
func (s *Store) Set(kind Kind, key string, value interface{}) {
	s.SetRaw(kind, key, marshalOrNil(s.log, kind, key, value), s.now())
}

// SetRaw writes an already-encoded value with an explicit timestamp. Used by
// the orchestrator to copy slow-tier records into the fast tier without
// resetting their age.
func (s *Store) SetRaw(kind Kind, key string, value json.RawMessage, writtenAt time.Time) {
	if value == nil {
		return
	}

	_, err := s.db.Exec(`
		INSERT INTO signal_cache (kind, key, value, written_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, key) DO UPDATE SET
			value = excluded.value,
			written_at = excluded.written_at
	`, string(kind), key, []byte(value), writtenAt.Unix())
	if err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Str("key", key).Msg("Cache write failed, skipping")
	}
}

// DeleteExpired removes all records of the kind whose TTL has elapsed.
// Returns the number of rows deleted.
func (s *Store) DeleteExpired(kind Kind) (int64, error) {
	cutoff := s.now().Add(-kind.TTL()).Unix()

	result, err := s.db.Exec(
		"DELETE FROM signal_cache WHERE kind = ? AND written_at <= ?",
		string(kind), cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteAllExpired removes expired records of every kind.
// Returns kind -> rows deleted.
func (s *Store) DeleteAllExpired() map[Kind]int64 {
	deleted := make(map[Kind]int64)
	for _, kind := range []Kind{KindQuote, KindHistory, KindSignal} {
		n, err := s.DeleteExpired(kind)
		if err != nil {
			s.log.Warn().Err(err).Str("kind", string(kind)).Msg("Expired-entry cleanup failed")
			continue
		}
		deleted[kind] = n
	}
	return deleted
}

func marshalOrNil(log zerolog.Logger, kind Kind, key string, value interface{}) json.RawMessage {
	if raw, ok := value.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Str("key", key).Msg("Cache value marshal failed, skipping write")
		return nil
	}
	return data
}
