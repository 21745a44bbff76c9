// Package cards stores playbook cards and their alerting preferences. Cards
// are produced upstream; this side only reads them and toggles alerting.
package cards

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
)

// Repository handles card database operations.
type Repository struct {
	playbookDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new card repository.
func NewRepository(playbookDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		playbookDB: playbookDB,
		log:        log.With().Str("repo", "cards").Logger(),
	}
}

// Save inserts or replaces a card.
func (r *Repository) Save(card domain.Card) error {
	if card.ID == "" {
		return fmt.Errorf("card id is required")
	}
	if !card.Direction.Valid() {
		return fmt.Errorf("card %s has invalid direction %q", card.ID, card.Direction)
	}

	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to marshal card %s: %w", card.ID, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.playbookDB.Exec(
		`INSERT INTO cards (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		card.ID, string(data), now, now)
	if err != nil {
		return fmt.Errorf("failed to save card %s: %w", card.ID, err)
	}
	return nil
}

// Get returns a card by id, or domain.ErrNotFound.
func (r *Repository) Get(id string) (*domain.Card, error) {
	var data string
	err := r.playbookDB.QueryRow("SELECT data FROM cards WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query card %s: %w", id, err)
	}

	var card domain.Card
	if err := json.Unmarshal([]byte(data), &card); err != nil {
		return nil, fmt.Errorf("failed to unmarshal card %s: %w", id, err)
	}
	return &card, nil
}

// GetAll returns every stored card, newest first.
func (r *Repository) GetAll() ([]domain.Card, error) {
	rows, err := r.playbookDB.Query("SELECT data FROM cards ORDER BY created_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		var card domain.Card
		if err := json.Unmarshal([]byte(data), &card); err != nil {
			return nil, fmt.Errorf("failed to unmarshal card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}

	return cards, nil
}
