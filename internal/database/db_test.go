package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, name string) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), name+".db"), Name: name})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_CreatesNestedDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshots.db")

	db, err := New(Config{Path: path, Name: "snapshots"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "snapshots", db.Name())
	assert.Equal(t, path, db.Path())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNew_AppliesPragmas(t *testing.T) {
	db := openTemp(t, "pragmas")

	var mode string
	require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var sync int
	require.NoError(t, db.Conn().QueryRow("PRAGMA synchronous").Scan(&sync))
	assert.Equal(t, 0, sync)
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := openTemp(t, "m")

	schema := `CREATE TABLE IF NOT EXISTS t (k TEXT PRIMARY KEY, v BLOB);`
	require.NoError(t, db.Migrate(schema))
	require.NoError(t, db.Migrate(schema))

	_, err := db.Conn().Exec("INSERT INTO t (k, v) VALUES (?, ?)", "a", []byte("b"))
	assert.NoError(t, err)
}

func TestMigrate_InvalidSchema(t *testing.T) {
	db := openTemp(t, "bad")
	assert.Error(t, db.Migrate("CREATE NONSENSE"))
}

func TestIntegrityCheckAndCheckpoint(t *testing.T) {
	db := openTemp(t, "maint")
	require.NoError(t, db.Migrate(`CREATE TABLE IF NOT EXISTS t (k TEXT PRIMARY KEY);`))
	_, err := db.Conn().Exec(`INSERT INTO t (k) VALUES ('a')`)
	require.NoError(t, err)

	result, err := db.IntegrityCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	cp, err := db.CheckpointWAL(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cp.WALFrames, cp.Checkpointed)
}

func TestGetStats(t *testing.T) {
	db := openTemp(t, "s")

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageSize, int64(0))
}

func TestConnectionString(t *testing.T) {
	assert.Contains(t, connectionString("/tmp/a.db"), "/tmp/a.db?_pragma=journal_mode(WAL)&_pragma=synchronous(OFF)")
	assert.Contains(t, connectionString("file:x?mode=memory"), "file:x?mode=memory&_pragma=")
}
