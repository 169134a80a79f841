package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketdash/internal/database"
)

const (
	maintenanceTimeout = 30 * time.Second
	// walWarnFrames is the WAL size at which a checkpoint is overdue
	walWarnFrames = 1000
)

// DatabaseMaintenanceJob verifies integrity and checkpoints the WAL of a
// SQLite database.
type DatabaseMaintenanceJob struct {
	log zerolog.Logger
	db  *database.DB
}

// NewDatabaseMaintenanceJob creates a new DatabaseMaintenanceJob
func NewDatabaseMaintenanceJob(db *database.DB, log zerolog.Logger) *DatabaseMaintenanceJob {
	return &DatabaseMaintenanceJob{
		log: log.With().Str("job", "database_maintenance").Logger(),
		db:  db,
	}
}

// Name returns the job name
func (j *DatabaseMaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance job
func (j *DatabaseMaintenanceJob) Run() error {
	if j.db == nil {
		j.log.Warn().Msg("Database not initialized, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	name := j.db.Name()

	if err := j.db.Ping(ctx); err != nil {
		return fmt.Errorf("database %s unreachable: %w", name, err)
	}

	result, err := j.db.IntegrityCheck(ctx)
	if err != nil {
		return err
	}
	if result != "ok" {
		// Snapshots are disposable; the operator can delete the file
		j.log.Error().Str("database", name).Str("result", result).Msg("Database integrity check failed")
		return fmt.Errorf("database %s is corrupted: %s", name, result)
	}

	cp, err := j.db.CheckpointWAL(ctx)
	if err != nil {
		j.log.Warn().Err(err).Str("database", name).Msg("Failed to checkpoint WAL")
		return nil
	}

	if cp.WALFrames > walWarnFrames {
		j.log.Warn().
			Str("database", name).
			Int("wal_frames", cp.WALFrames).
			Int("checkpointed", cp.Checkpointed).
			Bool("busy", cp.Busy).
			Msg("WAL file is large, checkpoint may be needed")
	} else {
		j.log.Debug().
			Str("database", name).
			Int("wal_frames", cp.WALFrames).
			Msg("WAL checkpoint status OK")
	}

	j.log.Info().Str("database", name).Msg("Database maintenance completed")
	return nil
}
