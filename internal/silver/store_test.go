package silver

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db, "sqlite", t.TempDir())
}

func TestOpenSQLiteCreatesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := Open(Config{Driver: "sqlite", DSN: filepath.Join(dir, "silver.db"), Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.EnsureSchema(context.Background()))
	exists, err := store.TableExists(context.Background(), TableProducts)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "oracle", DSN: "whatever"})
	assert.Error(t, err)
}

func TestTableExists(t *testing.T) {
	t.Parallel()
	store := newMemoryStore(t)

	exists, err := store.TableExists(context.Background(), TableProducts)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.EnsureSchema(context.Background()))

	for _, table := range []string{TableProducts, TableReviews, TableManifestRuns} {
		exists, err := store.TableExists(context.Background(), table)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func TestHasColumn(t *testing.T) {
	t.Parallel()
	store := newMemoryStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))

	has, err := store.HasColumn(context.Background(), TableProducts, "is_fixture")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasColumn(context.Background(), TableProducts, "no_such_column")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestHasColumnOnLegacyTable(t *testing.T) {
	t.Parallel()
	store := newMemoryStore(t)
	_, err := store.DB().Exec(`CREATE TABLE products (product_id TEXT, brand TEXT)`)
	require.NoError(t, err)

	has, err := store.HasColumn(context.Background(), TableProducts, "is_fixture")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	t.Parallel()
	store := newMemoryStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.EnsureSchema(context.Background()))
}
