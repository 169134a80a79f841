package clientdata

import (
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db, time.Hour), zerolog.Nop())
	assert.Equal(t, "snapshot_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, time.Hour)
	job := NewCleanupJob(repo, zerolog.Nop())

	now := time.Now()
	job.now = func() time.Time { return now }

	require.NoError(t, repo.Store("expired", json.RawMessage(`{}`), now.Add(-2*time.Hour)))
	require.NoError(t, repo.Store("fresh", json.RawMessage(`{}`), now))

	require.NoError(t, job.Run())

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	snap, err := repo.GetIfFresh("fresh", now)
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

func TestCleanupJobRun_EmptyTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db, time.Hour), zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCleanupJobRun_ClosedDatabase(t *testing.T) {
	db := setupTestDB(t)
	job := NewCleanupJob(NewRepository(db, time.Hour), zerolog.Nop())
	db.Close()

	assert.Error(t, job.Run())
}
