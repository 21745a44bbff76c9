package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/internal/modules/triggers"
)

// EODEvaluationJob runs the daily trigger evaluation after market close.
type EODEvaluationJob struct {
	runner   *triggers.RunService
	location *time.Location
	timeout  time.Duration
	log      zerolog.Logger
}

// NewEODEvaluationJob creates the nightly evaluation job.
func NewEODEvaluationJob(runner *triggers.RunService, location *time.Location, log zerolog.Logger) *EODEvaluationJob {
	return &EODEvaluationJob{
		runner:   runner,
		location: location,
		timeout:  30 * time.Minute,
		log:      log.With().Str("job", "eod_evaluation").Logger(),
	}
}

// Name returns the job name.
func (j *EODEvaluationJob) Name() string {
	return "eod_evaluation"
}

// Run evaluates today's triggers. An already running evaluation (a manual run
// via the API) is not an error; the cooldown makes the rerun harmless anyway.
func (j *EODEvaluationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.runner.RunDaily(ctx, time.Now().In(j.location))
	if errors.Is(err, domain.ErrRunInProgress) {
		j.log.Warn().Msg("Evaluation already in progress, skipping scheduled run")
		return nil
	}
	if err != nil {
		return err
	}

	j.log.Info().
		Int("evaluated", result.Evaluated).
		Int("fired", result.Fired).
		Int("dispatched", result.Dispatched).
		Int("skipped", result.Skipped).
		Msg("Scheduled evaluation finished")
	return nil
}
