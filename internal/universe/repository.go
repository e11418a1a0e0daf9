// Package universe manages the watch list: the set of symbols a refresh scan
// walks, minus the ones explicitly excluded.
package universe

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Repository provides access to the watch list database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a watch list repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "universe").Logger(),
	}
}

// ActiveSymbols returns the symbols a scan should visit, alphabetically
// ordered so runs over an unchanged watch list walk a stable universe.
func (r *Repository) ActiveSymbols() ([]string, error) {
	return r.symbols("SELECT symbol FROM watchlist WHERE excluded = 0 ORDER BY symbol")
}

// ExcludedSymbols returns the symbols currently excluded from scans.
func (r *Repository) ExcludedSymbols() ([]string, error) {
	return r.symbols("SELECT symbol FROM watchlist WHERE excluded = 1 ORDER BY symbol")
}

// AllSymbols returns every watch list entry with its exclusion flag.
func (r *Repository) AllSymbols() ([]Entry, error) {
	rows, err := r.db.Query("SELECT symbol, excluded, added_at FROM watchlist ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var excluded int
		var addedAt int64
		if err := rows.Scan(&entry.Symbol, &excluded, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist row: %w", err)
		}
		entry.Excluded = excluded != 0
		entry.AddedAt = time.Unix(addedAt, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Entry is one watch list row.
type Entry struct {
	Symbol   string    `json:"symbol"`
	Excluded bool      `json:"excluded"`
	AddedAt  time.Time `json:"added_at"`
}

// Add inserts a symbol into the watch list. Adding an existing symbol is a
// no-op that preserves its exclusion flag.
func (r *Repository) Add(symbol string) error {
	symbol = normalize(symbol)
	if symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}

	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO watchlist (symbol, excluded, added_at) VALUES (?, 0, ?)",
		symbol, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to add %s to watchlist: %w", symbol, err)
	}
	return nil
}

// Remove deletes a symbol from the watch list.
func (r *Repository) Remove(symbol string) error {
	result, err := r.db.Exec("DELETE FROM watchlist WHERE symbol = ?", normalize(symbol))
	if err != nil {
		return fmt.Errorf("failed to remove %s from watchlist: %w", symbol, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetExcluded flips the exclusion flag for a symbol. Excluded symbols stay on
// the watch list but are invisible to scans.
func (r *Repository) SetExcluded(symbol string, excluded bool) error {
	flag := 0
	if excluded {
		flag = 1
	}

	result, err := r.db.Exec("UPDATE watchlist SET excluded = ? WHERE symbol = ?", flag, normalize(symbol))
	if err != nil {
		return fmt.Errorf("failed to update exclusion for %s: %w", symbol, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of watch list entries.
func (r *Repository) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM watchlist").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count watchlist: %w", err)
	}
	return count, nil
}

func (r *Repository) symbols(query string) ([]string, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist row: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
