package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biblemarker/biblemarker/internal/store"
	"github.com/biblemarker/biblemarker/internal/testutil"
)

// deterministicOpts returns store options with a fixed clock and id sequence.
func deterministicOpts(prefix string) []Option {
	return []Option{
		WithClock(testutil.NewDeterministicClock()),
		WithIDGenerator(testutil.NewSequentialIDs(prefix)),
	}
}

// newMemoryStudyStore returns a study store over an in-memory repository,
// which exercises the parallel write path.
func newMemoryStudyStore(t *testing.T) (*StudyStore, *testutil.MemoryRepository) {
	t.Helper()
	repo := testutil.NewMemoryRepository()
	return NewStudyStore(repo, deterministicOpts("study")...), repo
}

// openSQLite opens a fresh SQLite store, which exercises the batch write path.
func openSQLite(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}
