package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSqliteDB_MemoryDefaults(t *testing.T) {
	database, err := NewSqliteDB(context.Background())
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
}

func TestNewSqliteDB_FileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	database, err := NewSqliteDB(context.Background(), WithPath(dbPath))
	require.NoError(t, err)
	defer database.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestNewSqliteDB_Schema(t *testing.T) {
	ctx := context.Background()
	schema := `CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT NOT NULL);`
	dbPath := filepath.Join(t.TempDir(), "kv.db")

	database, err := NewSqliteDB(ctx, WithPath(dbPath), WithSchema(schema))
	require.NoError(t, err)
	_, err = database.Exec(`INSERT INTO kv (k, v) VALUES ('a', '1')`)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	// reopening with the same schema is a no-op
	database, err = NewSqliteDB(ctx, WithPath(dbPath), WithSchema(schema))
	require.NoError(t, err)
	defer database.Close()

	var v string
	require.NoError(t, database.Get(&v, `SELECT v FROM kv WHERE k = 'a'`))
	assert.Equal(t, "1", v)
}

func TestNewSqliteDB_BadSchema(t *testing.T) {
	_, err := NewSqliteDB(context.Background(), WithSchema("CREATE GARBAGE"))
	assert.ErrorContains(t, err, "apply schema")
}
