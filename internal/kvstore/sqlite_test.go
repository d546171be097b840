package kvstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", "file:kvstore?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE snapshots (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
`)
	require.NoError(t, err)
	return NewSQLiteStore(db)
}

func TestSQLiteStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := setupSQLite(t)

	require.NoError(t, s.Set(ctx, KeyAccounts, []byte(`{"current":"main"}`)))

	got, err := s.Get(ctx, KeyAccounts)
	require.NoError(t, err)
	require.JSONEq(t, `{"current":"main"}`, string(got))
}

func TestSQLiteStore_GetMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := setupSQLite(t)

	got, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLiteStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	s := setupSQLite(t)

	require.NoError(t, s.Set(ctx, KeyBalances, []byte(`1`)))
	require.NoError(t, s.Set(ctx, KeyBalances, []byte(`2`)))

	got, err := s.Get(ctx, KeyBalances)
	require.NoError(t, err)
	require.Equal(t, []byte(`2`), got)
}

func TestSQLiteStore_ListDeleteClear(t *testing.T) {
	ctx := context.Background()
	s := setupSQLite(t)

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, []byte("1"), all["a"])

	require.NoError(t, s.Delete(ctx, "a"))
	all, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.Clear(ctx))
	all, err = s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}
