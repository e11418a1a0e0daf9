package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/finwatch/signalscan/internal/cache"
)

// CleanupJob prunes expired records from the fast cache tier so the cache
// database does not grow unbounded between scans.
type CleanupJob struct {
	store *cache.Store
	log   zerolog.Logger
}

// NewCleanupJob creates the cache cleanup job.
func NewCleanupJob(store *cache.Store, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		store: store,
		log:   log.With().Str("component", "cleanup_job").Logger(),
	}
}

// Name implements Job.
func (j *CleanupJob) Name() string {
	return "cache_cleanup"
}

// Run implements Job.
func (j *CleanupJob) Run() error {
	deleted := j.store.DeleteAllExpired()

	var total int64
	for _, n := range deleted {
		total += n
	}
	if total > 0 {
		j.log.Info().Int64("deleted", total).Msg("Pruned expired cache entries")
	}
	return nil
}
