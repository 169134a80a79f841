package clientdata

import (
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob removes expired snapshots.
// It should be scheduled to run hourly.
type CleanupJob struct {
	repo *Repository
	now  func() time.Time
	log  zerolog.Logger
}

// NewCleanupJob creates a new snapshot cleanup job.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		now:  time.Now,
		log:  log.With().Str("job", "snapshot_cleanup").Logger(),
	}
}

// Run executes the cleanup job.
func (j *CleanupJob) Run() error {
	deleted, err := j.repo.DeleteExpired(j.now())
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired snapshots")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Msg("Snapshot cleanup completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "snapshot_cleanup"
}
