package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/database"
	"github.com/aristath/playbook/internal/modules/discovery"
)

// MaintenanceJob prunes expired cache entries and checkpoints the WAL files
// so they do not grow unbounded between restarts.
type MaintenanceJob struct {
	cache     *discovery.Cache
	databases []*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates the hourly maintenance job.
func NewMaintenanceJob(cache *discovery.Cache, databases []*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		cache:     cache,
		databases: databases,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name.
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run performs one maintenance pass. Individual failures are logged and the
// pass continues; maintenance must never take the service down.
func (j *MaintenanceJob) Run() error {
	if j.cache != nil {
		if err := j.cache.Prune(); err != nil {
			j.log.Warn().Err(err).Msg("Cache prune failed")
		}
	}

	for _, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	return nil
}
