package alerts

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// retryJob is one channel delivery awaiting another attempt.
type retryJob struct {
	event    Event
	channel  Channel
	attempts int
	nextTry  time.Time
}

// RetryQueue redelivers failed channel sends in the background with bounded
// exponential backoff. The queue is in-process; undelivered jobs are lost on
// shutdown, which the delivery status table makes visible.
type RetryQueue struct {
	repo        *Repository
	sendTimeout time.Duration
	maxAttempts int
	queue       chan retryJob
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	log         zerolog.Logger
}

// NewRetryQueue creates and starts a retry queue.
func NewRetryQueue(repo *Repository, sendTimeout time.Duration, maxAttempts int, log zerolog.Logger) *RetryQueue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &RetryQueue{
		repo:        repo,
		sendTimeout: sendTimeout,
		maxAttempts: maxAttempts,
		queue:       make(chan retryJob, 256),
		ctx:         ctx,
		cancel:      cancel,
		log:         log.With().Str("component", "alert_retry").Logger(),
	}

	q.wg.Add(1)
	go q.worker()

	return q
}

// Enqueue schedules a failed delivery for another attempt. attempts is how
// many sends have already happened. Returns false when the queue is full or
// the attempt budget is spent; the delivery stays marked failed.
func (q *RetryQueue) Enqueue(event Event, channel Channel, attempts int) bool {
	if attempts >= q.maxAttempts {
		return false
	}

	job := retryJob{
		event:    event,
		channel:  channel,
		attempts: attempts,
		nextTry:  time.Now().Add(backoff(attempts)),
	}

	select {
	case q.queue <- job:
		return true
	default:
		q.log.Warn().Str("alert_id", event.ID).Str("channel", channel.Name()).
			Msg("Retry queue full, dropping delivery")
		return false
	}
}

// Stop shuts the worker down. Jobs still queued are dropped.
func (q *RetryQueue) Stop() {
	q.cancel()
	q.wg.Wait()
}

func (q *RetryQueue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.queue:
			if wait := time.Until(job.nextTry); wait > 0 {
				select {
				case <-q.ctx.Done():
					return
				case <-time.After(wait):
				}
			}
			q.attempt(job)
		}
	}
}

func (q *RetryQueue) attempt(job retryJob) {
	ctx, cancel := context.WithTimeout(q.ctx, q.sendTimeout)
	err := job.channel.Send(ctx, job.event)
	cancel()

	attempts := job.attempts + 1
	name := job.channel.Name()

	if err == nil {
		if dbErr := q.repo.SetDeliveryStatus(job.event.ID, name, StatusSent, attempts, ""); dbErr != nil {
			q.log.Error().Err(dbErr).Str("alert_id", job.event.ID).Msg("Failed to record delivery")
		}
		q.log.Info().Str("alert_id", job.event.ID).Str("channel", name).
			Int("attempts", attempts).Msg("Alert delivered on retry")
		return
	}

	if attempts >= q.maxAttempts {
		if dbErr := q.repo.SetDeliveryStatus(job.event.ID, name, StatusFailed, attempts, err.Error()); dbErr != nil {
			q.log.Error().Err(dbErr).Str("alert_id", job.event.ID).Msg("Failed to record delivery")
		}
		q.log.Error().Err(err).Str("alert_id", job.event.ID).Str("channel", name).
			Int("attempts", attempts).Msg("Alert delivery abandoned after max retries")
		return
	}

	if dbErr := q.repo.SetDeliveryStatus(job.event.ID, name, StatusRetrying, attempts, err.Error()); dbErr != nil {
		q.log.Error().Err(dbErr).Str("alert_id", job.event.ID).Msg("Failed to record delivery")
	}

	job.attempts = attempts
	job.nextTry = time.Now().Add(backoff(attempts))
	select {
	case q.queue <- job:
	default:
		q.log.Warn().Str("alert_id", job.event.ID).Str("channel", name).
			Msg("Retry queue full, dropping delivery")
	}
}

// backoff is exponential with a 2s base and up to 10% jitter.
func backoff(attempts int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempts))) * 2 * time.Second
	jitter := time.Duration(rand.Float64() * float64(d) * 0.1)
	return d + jitter
}
