package portfolio

import (
	"context"

	"github.com/rs/zerolog"
)

// LatestPriceSource marks open positions to market. Implemented by the prices
// service.
type LatestPriceSource interface {
	LatestClose(ctx context.Context, symbol string) *float64
}

// Stats summarises the paper book.
type Stats struct {
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRate         float64 `json:"win_rate"` // closed positions only
	RealizedPnL     float64 `json:"realized_pnl"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
}

// Service enriches positions with PnL and aggregates stats.
type Service struct {
	repo   *Repository
	prices LatestPriceSource
	log    zerolog.Logger
}

// NewService creates a portfolio service. prices may be nil; open positions
// then carry no unrealized PnL.
func NewService(repo *Repository, prices LatestPriceSource, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		prices: prices,
		log:    log.With().Str("service", "portfolio").Logger(),
	}
}

// Open implements the auto-entry hook used by the alert dispatcher.
func (s *Service) Open(ctx context.Context, cardID, symbol string, qty, entryPx float64, day string) error {
	_, err := s.repo.Open(cardID, symbol, qty, entryPx, day)
	return err
}

// OpenManual opens a position from the API and returns it.
func (s *Service) OpenManual(cardID, symbol string, qty, entryPx float64, day string) (*Position, error) {
	return s.repo.Open(cardID, symbol, qty, entryPx, day)
}

// ClosePosition closes a position and reports its realized PnL.
func (s *Service) ClosePosition(id string, exitPx float64, day string) (*Position, error) {
	pos, err := s.repo.Close(id, exitPx, day)
	if err != nil {
		return nil, err
	}
	pnl := (pos.ExitPx - pos.EntryPx) * pos.Qty
	pos.PnL = &pnl
	return pos, nil
}

// List returns positions with PnL attached: realized for closed ones, marked
// to the latest close for open ones when a price is available.
func (s *Service) List(ctx context.Context, status string) ([]Position, error) {
	positions, err := s.repo.List(status)
	if err != nil {
		return nil, err
	}

	for i := range positions {
		pos := &positions[i]
		switch pos.Status {
		case StatusClosed:
			pnl := (pos.ExitPx - pos.EntryPx) * pos.Qty
			pos.PnL = &pnl
		case StatusOpen:
			if s.prices == nil {
				continue
			}
			if latest := s.prices.LatestClose(ctx, pos.Symbol); latest != nil {
				pnl := (*latest - pos.EntryPx) * pos.Qty
				pos.PnL = &pnl
			}
		}
	}

	return positions, nil
}

// GetStats aggregates win rate and PnL over the whole book.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	positions, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, pos := range positions {
		switch pos.Status {
		case StatusOpen:
			stats.OpenPositions++
			if pos.PnL != nil {
				stats.UnrealizedPnL += *pos.PnL
			}
		case StatusClosed:
			stats.ClosedPositions++
			if pos.PnL == nil {
				continue
			}
			stats.RealizedPnL += *pos.PnL
			if *pos.PnL > 0 {
				stats.Wins++
			} else {
				stats.Losses++
			}
		}
	}

	if stats.ClosedPositions > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.ClosedPositions)
	}
	return stats, nil
}
