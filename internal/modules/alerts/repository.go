package alerts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles alert event and delivery database operations.
type Repository struct {
	alertsDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a new alert repository.
func NewRepository(alertsDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		alertsDB: alertsDB,
		log:      log.With().Str("repo", "alerts").Logger(),
	}
}

// Insert stores an alert event. The UNIQUE(trigger_id, fired_date) constraint
// plus INSERT OR IGNORE make this idempotent: a same-day duplicate is a no-op
// and Insert reports fresh=false.
func (r *Repository) Insert(event Event) (bool, error) {
	invalidator := 0
	if event.Invalidator {
		invalidator = 1
	}

	res, err := r.alertsDB.Exec(
		`INSERT OR IGNORE INTO alert_events
		 (id, trigger_id, card_id, symbol, fired_at, fired_date, price, reason_en, reason_cn, invalidator, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.TriggerID, event.CardID, event.Symbol, event.FiredAt, event.FiredDate,
		event.Price, event.ReasonEN, event.ReasonCN, invalidator,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("failed to insert alert for trigger %s: %w", event.TriggerID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if n == 0 {
		r.log.Debug().Str("trigger_id", event.TriggerID).Str("date", event.FiredDate).
			Msg("Alert already recorded for this day, ignoring duplicate")
		return false, nil
	}
	return true, nil
}

// ListRecent returns the newest alerts first, deliveries attached.
func (r *Repository) ListRecent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.alertsDB.Query(
		`SELECT id, trigger_id, card_id, symbol, fired_at, fired_date, price, reason_en, reason_cn, invalidator
		 FROM alert_events ORDER BY fired_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event       Event
			invalidator int
		)
		if err := rows.Scan(&event.ID, &event.TriggerID, &event.CardID, &event.Symbol,
			&event.FiredAt, &event.FiredDate, &event.Price, &event.ReasonEN, &event.ReasonCN,
			&invalidator); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		event.Invalidator = invalidator != 0
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	for i := range events {
		deliveries, err := r.GetDeliveries(events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Deliveries = deliveries
	}

	return events, nil
}

// SetDeliveryStatus upserts the send status of one channel for one alert.
func (r *Repository) SetDeliveryStatus(alertID, channel, status string, attempts int, lastError string) error {
	_, err := r.alertsDB.Exec(
		`INSERT INTO alert_deliveries (alert_id, channel, status, attempts, last_error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(alert_id, channel) DO UPDATE SET
		   status = excluded.status,
		   attempts = excluded.attempts,
		   last_error = excluded.last_error,
		   updated_at = excluded.updated_at`,
		alertID, channel, status, attempts, nullIfEmpty(lastError),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record delivery %s/%s: %w", alertID, channel, err)
	}
	return nil
}

// GetDeliveries returns the per-channel statuses of one alert.
func (r *Repository) GetDeliveries(alertID string) (map[string]Delivery, error) {
	rows, err := r.alertsDB.Query(
		"SELECT channel, status, attempts, last_error FROM alert_deliveries WHERE alert_id = ?", alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := make(map[string]Delivery)
	for rows.Next() {
		var (
			channel  string
			delivery Delivery
			lastErr  sql.NullString
		)
		if err := rows.Scan(&channel, &delivery.Status, &delivery.Attempts, &lastErr); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		delivery.LastError = lastErr.String
		deliveries[channel] = delivery
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deliveries: %w", err)
	}

	return deliveries, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
