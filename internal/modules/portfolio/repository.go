// Package portfolio keeps the paper positions opened by alert auto-entry or
// by hand, and derives simple performance stats from them.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
)

// Position statuses.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Position is one paper trade.
type Position struct {
	ID       string  `json:"id"`
	Symbol   string  `json:"symbol"`
	CardID   string  `json:"card_id"`
	OpenedAt string  `json:"opened_at"` // calendar day
	EntryPx  float64 `json:"entry_px"`
	Qty      float64 `json:"qty"`
	ClosedAt string  `json:"closed_at,omitempty"`
	ExitPx   float64 `json:"exit_px,omitempty"`
	Status   string  `json:"status"`

	// PnL is filled on closed positions and on open positions when a current
	// price is known.
	PnL *float64 `json:"pnl,omitempty"`
}

// Repository handles position database operations.
type Repository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewRepository creates a new position repository.
func NewRepository(portfolioDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "portfolio").Logger(),
	}
}

// Open creates a position. At most one open position per (card, symbol);
// a duplicate attempt returns domain.ErrDuplicatePosition.
func (r *Repository) Open(cardID, symbol string, qty, entryPx float64, day string) (*Position, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("position quantity must be positive, got %v", qty)
	}
	if entryPx <= 0 {
		return nil, fmt.Errorf("position entry price must be positive, got %v", entryPx)
	}

	var existing int
	err := r.portfolioDB.QueryRow(
		"SELECT COUNT(*) FROM positions WHERE card_id = ? AND symbol = ? AND status = ?",
		cardID, symbol, StatusOpen).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("failed to check open positions: %w", err)
	}
	if existing > 0 {
		return nil, domain.ErrDuplicatePosition
	}

	pos := Position{
		ID:       uuid.New().String(),
		Symbol:   symbol,
		CardID:   cardID,
		OpenedAt: day,
		EntryPx:  entryPx,
		Qty:      qty,
		Status:   StatusOpen,
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.portfolioDB.Exec(
		`INSERT INTO positions (id, symbol, card_id, opened_at, entry_px, qty, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.ID, pos.Symbol, pos.CardID, pos.OpenedAt, pos.EntryPx, pos.Qty, pos.Status, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to open position for %s: %w", symbol, err)
	}

	return &pos, nil
}

// Close marks a position closed at the given exit price.
func (r *Repository) Close(id string, exitPx float64, day string) (*Position, error) {
	if exitPx <= 0 {
		return nil, fmt.Errorf("exit price must be positive, got %v", exitPx)
	}

	res, err := r.portfolioDB.Exec(
		`UPDATE positions SET status = ?, exit_px = ?, closed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		StatusClosed, exitPx, day, time.Now().UTC().Format(time.RFC3339), id, StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to close position %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read close result: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrNotFound
	}

	return r.Get(id)
}

// Get returns one position, or domain.ErrNotFound.
func (r *Repository) Get(id string) (*Position, error) {
	positions, err := r.query("SELECT id, symbol, card_id, opened_at, entry_px, qty, closed_at, exit_px, status FROM positions WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, domain.ErrNotFound
	}
	return &positions[0], nil
}

// List returns positions, optionally filtered by status, newest first.
func (r *Repository) List(status string) ([]Position, error) {
	q := "SELECT id, symbol, card_id, opened_at, entry_px, qty, closed_at, exit_px, status FROM positions"
	var args []interface{}
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, status)
	}
	q += " ORDER BY opened_at DESC, symbol ASC"
	return r.query(q, args...)
}

func (r *Repository) query(q string, args ...interface{}) ([]Position, error) {
	rows, err := r.portfolioDB.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var (
			pos      Position
			closedAt sql.NullString
			exitPx   sql.NullFloat64
		)
		if err := rows.Scan(&pos.ID, &pos.Symbol, &pos.CardID, &pos.OpenedAt, &pos.EntryPx,
			&pos.Qty, &closedAt, &exitPx, &pos.Status); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		pos.ClosedAt = closedAt.String
		pos.ExitPx = exitPx.Float64
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}

	return positions, nil
}
