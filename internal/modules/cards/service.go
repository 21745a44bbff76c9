package cards

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
)

// RuleArmer arms and disarms trigger rules for a card. Implemented by the
// triggers repository; the indirection keeps the packages decoupled.
type RuleArmer interface {
	SetEnabledForCard(cardID string, enabled bool, armedSince string) (int, error)
}

// AlertOptions carries the preferences set when enabling alerts for a card.
type AlertOptions struct {
	Channels     []string `json:"channels"`
	AutoEntry    bool     `json:"auto_entry"`
	AutoEntryQty float64  `json:"auto_entry_qty"`
}

var knownChannels = map[string]bool{
	"email":   true,
	"webhook": true,
	"bot":     true,
}

// Service toggles alerting for cards. Enabling arms the card's trigger rules;
// disabling disarms them without deleting anything, so fired history and the
// one-per-day cooldown survive a re-enable.
type Service struct {
	repo  *Repository
	rules RuleArmer
	log   zerolog.Logger
}

// NewService creates a card service.
func NewService(repo *Repository, rules RuleArmer, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		rules: rules,
		log:   log.With().Str("service", "cards").Logger(),
	}
}

// EnableAlerts turns on alerting for a card and arms all of its rules.
// Returns the number of rules armed.
func (s *Service) EnableAlerts(cardID string, opts AlertOptions) (int, error) {
	card, err := s.repo.Get(cardID)
	if err != nil {
		return 0, err
	}

	for _, ch := range opts.Channels {
		if !knownChannels[ch] {
			return 0, fmt.Errorf("unknown notification channel %q", ch)
		}
	}
	if len(opts.Channels) == 0 {
		opts.Channels = []string{"webhook"}
	}
	if opts.AutoEntry && opts.AutoEntryQty <= 0 {
		return 0, fmt.Errorf("auto entry requires a positive quantity")
	}

	card.AlertsEnabled = true
	card.Channels = opts.Channels
	card.AutoEntry = opts.AutoEntry
	card.AutoEntryQty = opts.AutoEntryQty
	if err := s.repo.Save(*card); err != nil {
		return 0, err
	}

	today := time.Now().UTC().Format(domain.DateLayout)
	armed, err := s.rules.SetEnabledForCard(cardID, true, today)
	if err != nil {
		return 0, fmt.Errorf("failed to arm rules for card %s: %w", cardID, err)
	}

	s.log.Info().Str("card_id", cardID).Int("rules_armed", armed).
		Strs("channels", opts.Channels).Bool("auto_entry", opts.AutoEntry).
		Msg("Alerts enabled")
	return armed, nil
}

// DisableAlerts turns off alerting for a card and disarms its rules. Rules and
// alert history are kept intact.
func (s *Service) DisableAlerts(cardID string) (int, error) {
	card, err := s.repo.Get(cardID)
	if err != nil {
		return 0, err
	}

	card.AlertsEnabled = false
	if err := s.repo.Save(*card); err != nil {
		return 0, err
	}

	disarmed, err := s.rules.SetEnabledForCard(cardID, false, "")
	if err != nil {
		return 0, fmt.Errorf("failed to disarm rules for card %s: %w", cardID, err)
	}

	s.log.Info().Str("card_id", cardID).Int("rules_disarmed", disarmed).Msg("Alerts disabled")
	return disarmed, nil
}
