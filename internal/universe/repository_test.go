package universe

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finwatch/signalscan/internal/database"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "watchlist.db"),
		Profile: database.ProfileStandard,
		Name:    "watchlist",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestRepositoryAddAndList(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Add("msft"))
	require.NoError(t, repo.Add("AAPL"))
	require.NoError(t, repo.Add(" nvda "))

	symbols, err := repo.ActiveSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, symbols)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRepositoryAddIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Add("AAPL"))
	require.NoError(t, repo.SetExcluded("AAPL", true))

	// Re-adding must not resurrect an excluded symbol.
	require.NoError(t, repo.Add("AAPL"))

	active, err := repo.ActiveSymbols()
	require.NoError(t, err)
	assert.Empty(t, active)

	excluded, err := repo.ExcludedSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, excluded)
}

func TestRepositoryAddRejectsEmptySymbol(t *testing.T) {
	repo := newTestRepository(t)

	assert.Error(t, repo.Add("   "))
}

func TestRepositoryExclusion(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Add("AAPL"))
	require.NoError(t, repo.Add("MSFT"))

	require.NoError(t, repo.SetExcluded("MSFT", true))

	active, err := repo.ActiveSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, active)

	require.NoError(t, repo.SetExcluded("MSFT", false))

	active, err = repo.ActiveSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, active)
}

func TestRepositoryRemove(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Add("AAPL"))
	require.NoError(t, repo.Remove("aapl"))

	active, err := repo.ActiveSymbols()
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, repo.Remove("AAPL"), ErrNotFound)
	assert.ErrorIs(t, repo.SetExcluded("AAPL", true), ErrNotFound)
}

func TestRepositoryAllSymbols(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Add("AAPL"))
	require.NoError(t, repo.Add("MSFT"))
	require.NoError(t, repo.SetExcluded("MSFT", true))

	entries, err := repo.AllSymbols()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.False(t, entries[0].Excluded)
	assert.Equal(t, "MSFT", entries[1].Symbol)
	assert.True(t, entries[1].Excluded)
	assert.False(t, entries[0].AddedAt.IsZero())
}
