package triggers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
)

// Dispatcher commits a fired decision: inserts the alert event, fans out the
// notification channels and optionally opens a paper position. Returns whether
// the event was freshly inserted (false on a same-day duplicate).
type Dispatcher interface {
	Dispatch(ctx context.Context, day string, decision Decision) (bool, error)
}

// RunService orchestrates the daily evaluation run. A run-level mutex keeps
// the scheduler and the HTTP trigger from running concurrently.
type RunService struct {
	repo       *Repository
	evaluator  *Evaluator
	dispatcher Dispatcher
	log        zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewRunService creates the daily run orchestrator.
func NewRunService(repo *Repository, evaluator *Evaluator, dispatcher Dispatcher, log zerolog.Logger) *RunService {
	return &RunService{
		repo:       repo,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		log:        log.With().Str("service", "trigger_run").Logger(),
	}
}

// RunDaily evaluates all armed rules for the given day and dispatches fired
// alerts. A second concurrent caller gets domain.ErrRunInProgress.
func (s *RunService) RunDaily(ctx context.Context, date time.Time) (*RunResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, domain.ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	day := date.Format(domain.DateLayout)
	result := &RunResult{Date: day, StartedAt: time.Now().UTC()}

	rules, err := s.repo.GetArmed()
	if err != nil {
		return nil, err
	}
	result.Evaluated = len(rules)

	decisions := s.evaluator.Evaluate(ctx, date, rules)

	for _, decision := range decisions {
		if decision.Skipped {
			result.Skipped++
			continue
		}
		if !decision.Fired {
			continue
		}
		result.Fired++

		fresh, err := s.dispatcher.Dispatch(ctx, day, decision)
		if err != nil {
			s.log.Error().Err(err).Str("rule_id", decision.Rule.ID).
				Msg("Failed to dispatch alert")
			continue
		}
		if fresh {
			result.Dispatched++
		}
		if err := s.repo.MarkFired(decision.Rule.ID, day); err != nil {
			s.log.Error().Err(err).Str("rule_id", decision.Rule.ID).
				Msg("Failed to record fire date")
		}
	}

	result.FinishedAt = time.Now().UTC()
	s.log.Info().
		Str("date", day).
		Int("evaluated", result.Evaluated).
		Int("fired", result.Fired).
		Int("dispatched", result.Dispatched).
		Int("skipped", result.Skipped).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Daily trigger run complete")

	return result, nil
}

// FireManualEvent fires the armed manual_event rules of a card matching the
// event type. Price-driven kinds are unaffected. Returns the number of alerts
// dispatched (same-day duplicates are absorbed by the event dedup).
func (s *RunService) FireManualEvent(ctx context.Context, cardID, eventType, note string) (int, error) {
	rules, err := s.repo.GetArmedManualEvent(cardID, eventType)
	if err != nil {
		return 0, err
	}
	if len(rules) == 0 {
		return 0, domain.ErrNotFound
	}

	day := time.Now().UTC().Format(domain.DateLayout)
	dispatched := 0
	for _, rule := range rules {
		if rule.LastFiredDate == day {
			continue
		}

		reasonEN, reasonCN := manualEventReason(eventType, note)
		decision := Decision{
			Rule:     rule,
			Fired:    true,
			ReasonEN: reasonEN,
			ReasonCN: reasonCN,
		}

		fresh, err := s.dispatcher.Dispatch(ctx, day, decision)
		if err != nil {
			s.log.Error().Err(err).Str("rule_id", rule.ID).Msg("Failed to dispatch manual event")
			continue
		}
		if fresh {
			dispatched++
		}
		if err := s.repo.MarkFired(rule.ID, day); err != nil {
			s.log.Error().Err(err).Str("rule_id", rule.ID).Msg("Failed to record fire date")
		}
	}

	return dispatched, nil
}
