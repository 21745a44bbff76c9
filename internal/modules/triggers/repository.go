package triggers

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
)

// Repository handles trigger rule database operations.
type Repository struct {
	playbookDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new trigger rule repository.
func NewRepository(playbookDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		playbookDB: playbookDB,
		log:        log.With().Str("repo", "triggers").Logger(),
	}
}

// Create validates and stores a rule. Invalid parameters are rejected with
// domain.ErrInvalidRule before anything is written.
func (r *Repository) Create(rule Rule) (string, error) {
	if rule.CardID == "" {
		return "", fmt.Errorf("%w: rule requires a card_id", domain.ErrInvalidRule)
	}
	if rule.Spec == nil {
		return "", fmt.Errorf("%w: rule requires parameters", domain.ErrInvalidRule)
	}
	// The spec is authoritative for the kind; manual events are the only
	// rules that may omit a symbol.
	if rule.Symbol == "" && rule.Spec.Kind() != KindManualEvent {
		return "", fmt.Errorf("%w: rule requires a symbol", domain.ErrInvalidRule)
	}
	if err := rule.Spec.Validate(); err != nil {
		return "", err
	}

	params, err := MarshalSpec(rule.Spec)
	if err != nil {
		return "", err
	}

	id := rule.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	invalidator := 0
	if rule.Invalidator {
		invalidator = 1
	}

	_, err = r.playbookDB.Exec(
		`INSERT INTO trigger_rules
		 (id, card_id, symbol, kind, invalidator, params, enabled, armed_since, last_fired_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		id, rule.CardID, rule.Symbol, rule.Spec.Kind(), invalidator, string(params),
		enabled, nullString(rule.ArmedSince), now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create rule for card %s: %w", rule.CardID, err)
	}

	return id, nil
}

// GetArmed returns every enabled rule with the owning card's direction
// attached. Rules whose card is missing are not returned.
func (r *Repository) GetArmed() ([]Rule, error) {
	return r.query(`
		SELECT r.id, r.card_id, r.symbol, r.kind, r.invalidator, r.params,
		       r.enabled, r.armed_since, r.last_fired_date,
		       json_extract(c.data, '$.direction')
		FROM trigger_rules r
		JOIN cards c ON c.id = r.card_id
		WHERE r.enabled = 1
		ORDER BY r.card_id, r.id`)
}

// GetByCard returns all rules of a card, armed or not.
func (r *Repository) GetByCard(cardID string) ([]Rule, error) {
	return r.query(`
		SELECT r.id, r.card_id, r.symbol, r.kind, r.invalidator, r.params,
		       r.enabled, r.armed_since, r.last_fired_date,
		       json_extract(c.data, '$.direction')
		FROM trigger_rules r
		JOIN cards c ON c.id = r.card_id
		WHERE r.card_id = ?
		ORDER BY r.id`, cardID)
}

// GetArmedManualEvent returns the armed manual_event rules of a card matching
// the given event type.
func (r *Repository) GetArmedManualEvent(cardID, eventType string) ([]Rule, error) {
	rules, err := r.query(`
		SELECT r.id, r.card_id, r.symbol, r.kind, r.invalidator, r.params,
		       r.enabled, r.armed_since, r.last_fired_date,
		       json_extract(c.data, '$.direction')
		FROM trigger_rules r
		JOIN cards c ON c.id = r.card_id
		WHERE r.card_id = ? AND r.kind = ? AND r.enabled = 1
		ORDER BY r.id`, cardID, KindManualEvent)
	if err != nil {
		return nil, err
	}

	matched := rules[:0]
	for _, rule := range rules {
		if spec, ok := rule.Spec.(ManualEventSpec); ok && spec.EventType == eventType {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

// SetEnabledForCard arms or disarms every rule of a card and returns how many
// rows changed. Arming stamps armed_since only on rules not already armed so
// time_stop clocks are not reset by a redundant enable.
func (r *Repository) SetEnabledForCard(cardID string, enabled bool, armedSince string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if enabled {
		res, err = r.playbookDB.Exec(
			`UPDATE trigger_rules
			 SET enabled = 1,
			     armed_since = COALESCE(armed_since, ?),
			     updated_at = ?
			 WHERE card_id = ?`,
			armedSince, time.Now().UTC().Format(time.RFC3339), cardID)
	} else {
		res, err = r.playbookDB.Exec(
			"UPDATE trigger_rules SET enabled = 0, updated_at = ? WHERE card_id = ?",
			time.Now().UTC().Format(time.RFC3339), cardID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to toggle rules for card %s: %w", cardID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count toggled rules: %w", err)
	}
	return int(n), nil
}

// MarkFired records the calendar day a rule last fired. The one-per-day
// cooldown reads this back on the next run.
func (r *Repository) MarkFired(ruleID, date string) error {
	_, err := r.playbookDB.Exec(
		"UPDATE trigger_rules SET last_fired_date = ?, updated_at = ? WHERE id = ?",
		date, time.Now().UTC().Format(time.RFC3339), ruleID)
	if err != nil {
		return fmt.Errorf("failed to mark rule %s fired: %w", ruleID, err)
	}
	return nil
}

func (r *Repository) query(q string, args ...interface{}) ([]Rule, error) {
	rows, err := r.playbookDB.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var (
			rule        Rule
			invalidator int
			enabled     int
			params      string
			armedSince  sql.NullString
			lastFired   sql.NullString
			direction   sql.NullString
		)
		if err := rows.Scan(&rule.ID, &rule.CardID, &rule.Symbol, &rule.Kind, &invalidator,
			&params, &enabled, &armedSince, &lastFired, &direction); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		spec, err := ParseSpec(rule.Kind, []byte(params))
		if err != nil {
			// A stored rule that no longer parses is a data bug; surface it
			// instead of silently dropping the rule.
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}

		rule.Spec = spec
		rule.Invalidator = invalidator != 0
		rule.Enabled = enabled != 0
		rule.ArmedSince = armedSince.String
		rule.LastFiredDate = lastFired.String
		rule.Direction = domain.Direction(direction.String)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	return rules, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
