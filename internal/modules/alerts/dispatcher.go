package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/internal/modules/triggers"
)

// CardGetter looks up the owning card of a fired rule. Implemented by the
// cards repository.
type CardGetter interface {
	Get(id string) (*domain.Card, error)
}

// PositionOpener opens a paper position for auto-entry. Implemented by the
// portfolio service.
type PositionOpener interface {
	Open(ctx context.Context, cardID, symbol string, qty, entryPx float64, day string) error
}

// LatestPriceSource supplies a fallback entry price when a decision carries
// none (manual events).
type LatestPriceSource interface {
	LatestClose(ctx context.Context, symbol string) *float64
}

// Dispatcher commits fired decisions: insert-or-ignore the event, fan out the
// card's channels concurrently, then attempt auto-entry. Channel failures are
// independent; one failing never blocks the others or the event itself.
type Dispatcher struct {
	repo        *Repository
	cards       CardGetter
	channels    map[string]Channel
	retry       *RetryQueue
	positions   PositionOpener
	prices      LatestPriceSource
	sendTimeout time.Duration
	log         zerolog.Logger
}

// NewDispatcher creates an alert dispatcher. positions and prices may be nil
// when paper auto-entry is not wired.
func NewDispatcher(
	repo *Repository,
	cards CardGetter,
	channels map[string]Channel,
	retry *RetryQueue,
	positions PositionOpener,
	prices LatestPriceSource,
	sendTimeout time.Duration,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:        repo,
		cards:       cards,
		channels:    channels,
		retry:       retry,
		positions:   positions,
		prices:      prices,
		sendTimeout: sendTimeout,
		log:         log.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Dispatch implements triggers.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, day string, decision triggers.Decision) (bool, error) {
	rule := decision.Rule

	event := Event{
		ID:          uuid.New().String(),
		TriggerID:   rule.ID,
		CardID:      rule.CardID,
		Symbol:      rule.Symbol,
		FiredAt:     time.Now().UTC().Format(time.RFC3339),
		FiredDate:   day,
		Price:       decision.Price,
		ReasonEN:    decision.ReasonEN,
		ReasonCN:    decision.ReasonCN,
		Invalidator: rule.Invalidator,
	}

	fresh, err := d.repo.Insert(event)
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}

	card, err := d.cards.Get(rule.CardID)
	if err != nil {
		// The event is recorded; without the card there is nothing to send.
		d.log.Warn().Err(err).Str("card_id", rule.CardID).
			Msg("Alert recorded but owning card is unreadable, skipping delivery")
		return true, nil
	}

	d.fanOut(ctx, event, card.Channels)

	if card.AutoEntry && !rule.Invalidator && rule.Symbol != "" {
		d.autoEntry(ctx, event, card, day)
	}

	return true, nil
}

// fanOut sends the alert to every configured channel of the card
// concurrently, each under its own timeout, and waits for all of them.
func (d *Dispatcher) fanOut(ctx context.Context, event Event, channelNames []string) {
	var wg sync.WaitGroup
	for _, name := range channelNames {
		channel, ok := d.channels[name]
		if !ok {
			d.log.Warn().Str("channel", name).Str("alert_id", event.ID).
				Msg("Channel not configured, delivery skipped")
			_ = d.repo.SetDeliveryStatus(event.ID, name, StatusFailed, 0, "channel not configured")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
			err := channel.Send(sendCtx, event)
			cancel()

			if err == nil {
				if dbErr := d.repo.SetDeliveryStatus(event.ID, channel.Name(), StatusSent, 1, ""); dbErr != nil {
					d.log.Error().Err(dbErr).Str("alert_id", event.ID).Msg("Failed to record delivery")
				}
				return
			}

			d.log.Warn().Err(err).Str("alert_id", event.ID).Str("channel", channel.Name()).
				Msg("Channel delivery failed, queueing retry")

			status := StatusFailed
			if d.retry != nil && d.retry.Enqueue(event, channel, 1) {
				status = StatusRetrying
			}
			if dbErr := d.repo.SetDeliveryStatus(event.ID, channel.Name(), status, 1, err.Error()); dbErr != nil {
				d.log.Error().Err(dbErr).Str("alert_id", event.ID).Msg("Failed to record delivery")
			}
		}()
	}
	wg.Wait()
}

// autoEntry opens a paper position at the fired price. Best effort: failures
// are logged and the alert stands.
func (d *Dispatcher) autoEntry(ctx context.Context, event Event, card *domain.Card, day string) {
	if d.positions == nil {
		return
	}

	entryPx := event.Price
	if entryPx <= 0 && d.prices != nil {
		if latest := d.prices.LatestClose(ctx, event.Symbol); latest != nil {
			entryPx = *latest
		}
	}
	if entryPx <= 0 {
		d.log.Warn().Str("alert_id", event.ID).Str("symbol", event.Symbol).
			Msg("No entry price available, auto-entry skipped")
		return
	}

	err := d.positions.Open(ctx, card.ID, event.Symbol, card.AutoEntryQty, entryPx, day)
	if errors.Is(err, domain.ErrDuplicatePosition) {
		d.log.Info().Str("card_id", card.ID).Str("symbol", event.Symbol).
			Msg("Position already open, auto-entry skipped")
		return
	}
	if err != nil {
		d.log.Error().Err(err).Str("card_id", card.ID).Str("symbol", event.Symbol).
			Msg("Auto-entry failed, alert stands")
		return
	}

	d.log.Info().Str("card_id", card.ID).Str("symbol", event.Symbol).
		Float64("qty", card.AutoEntryQty).Float64("entry_px", entryPx).
		Msg("Paper position opened by auto-entry")
}
