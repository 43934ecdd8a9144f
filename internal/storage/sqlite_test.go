package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore creates a migrated SQLite store in a temp directory.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	v, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, v)

	require.NoError(t, store.Migrate(ctx), "migrating twice is a no-op")
}

func TestSQLiteStore_SaveLoad(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	data, err := store.Load(ctx, CollectionReviews)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Save(ctx, CollectionReviews, []byte(`[1]`)))
	require.NoError(t, store.Save(ctx, CollectionReviews, []byte(`[1,2]`)))

	data, err = store.Load(ctx, CollectionReviews)
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(data))
}

func TestSQLiteStore_Backup(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	loc, err := store.Backup(ctx, CollectionDecisions, []byte("garbage"))
	require.NoError(t, err)
	assert.Contains(t, loc, "document_backups/1")

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_backups WHERE collection = ?`, CollectionDecisions).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Save(ctx, CollectionMeetings, []byte(`{}`)))
	data, err := store.Load(ctx, CollectionMeetings)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestSQLiteStore_NilContext(t *testing.T) {
	store := createTestStore(t)
	//nolint:staticcheck // exercising nil-context validation
	_, err := store.Load(nil, CollectionMeetings)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestOpen_SQLiteBackend(t *testing.T) {
	store, err := Open(context.Background(), BackendSQLite, t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	sqlite, ok := store.(*SQLiteStore)
	require.True(t, ok)
	assert.Equal(t, "hours.db", filepath.Base(sqlite.dbPath))
}
