package scheduler

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketdash/internal/database"
)

func TestDatabaseMaintenanceJob_Name(t *testing.T) {
	job := NewDatabaseMaintenanceJob(nil, zerolog.Nop())
	assert.Equal(t, "database_maintenance", job.Name())
}

func TestDatabaseMaintenanceJob_Run_NoDatabase(t *testing.T) {
	job := NewDatabaseMaintenanceJob(nil, zerolog.New(nil).Level(zerolog.Disabled))
	assert.NoError(t, job.Run())
}

func TestDatabaseMaintenanceJob_Run(t *testing.T) {
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "snapshots.db"),
		Name: "snapshots",
	})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(`CREATE TABLE IF NOT EXISTS t (k TEXT PRIMARY KEY);`))
	_, err = db.Conn().Exec(`INSERT INTO t (k) VALUES ('a'), ('b')`)
	require.NoError(t, err)

	job := NewDatabaseMaintenanceJob(db, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestDatabaseMaintenanceJob_Run_ClosedDatabase(t *testing.T) {
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "closed.db"),
		Name: "closed",
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	job := NewDatabaseMaintenanceJob(db, zerolog.Nop())
	assert.Error(t, job.Run())
}
