package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// openTestDB returns a fresh in-memory database with migrations applied.
// Each call opens its own private in-memory database, so tests never share
// state.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}
