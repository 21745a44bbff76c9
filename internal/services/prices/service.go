// Package prices serves end-of-day closes to the trigger evaluator, backed by
// the history database and filled on demand from the market data provider.
package prices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
)

// BarFetcher fetches EOD bars from the external provider.
type BarFetcher interface {
	GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.OHLC, error)
}

// Service reads daily closes, caching provider data in history.db so a batch
// run touches the provider at most once per symbol.
type Service struct {
	fetcher   BarFetcher
	historyDB *sql.DB
	log       zerolog.Logger
}

// New creates a new price service.
func New(fetcher BarFetcher, historyDB *sql.DB, log zerolog.Logger) *Service {
	return &Service{
		fetcher:   fetcher,
		historyDB: historyDB,
		log:       log.With().Str("service", "prices").Logger(),
	}
}

// Close returns the closing price of symbol on the given calendar day.
// A missing bar (provider has not published the day yet, unknown symbol)
// yields domain.ErrDataUnavailable.
func (s *Service) Close(ctx context.Context, symbol string, date time.Time) (float64, error) {
	closes, err := s.CloseSeries(ctx, symbol, date, 1)
	if err != nil {
		return 0, err
	}
	return closes[len(closes)-1], nil
}

// CloseSeries returns up to `days` daily closes for symbol ending on the
// given calendar day, ordered ascending. The series always ends with the bar
// of the requested day; if that bar does not exist the data is considered
// stale and domain.ErrDataUnavailable is returned.
func (s *Service) CloseSeries(ctx context.Context, symbol string, end time.Time, days int) ([]float64, error) {
	if days <= 0 {
		return nil, fmt.Errorf("series length must be positive, got %d", days)
	}

	closes, lastDate, err := s.queryCloses(ctx, symbol, end, days)
	if err != nil {
		return nil, err
	}

	endDay := end.Format(domain.DateLayout)
	if len(closes) < days || lastDate != endDay {
		if err := s.refill(ctx, symbol, end, days); err != nil {
			return nil, err
		}
		closes, lastDate, err = s.queryCloses(ctx, symbol, end, days)
		if err != nil {
			return nil, err
		}
	}

	if len(closes) == 0 || lastDate != endDay {
		return nil, fmt.Errorf("no close for %s on %s: %w", symbol, endDay, domain.ErrDataUnavailable)
	}

	return closes, nil
}

// queryCloses reads the most recent `days` closes up to and including `end`
// from history.db, returned ascending together with the date of the last bar.
func (s *Service) queryCloses(ctx context.Context, symbol string, end time.Time, days int) ([]float64, string, error) {
	rows, err := s.historyDB.QueryContext(ctx,
		`SELECT date, close FROM daily_prices
		 WHERE symbol = ? AND date <= ?
		 ORDER BY date DESC LIMIT ?`,
		symbol, end.Format(domain.DateLayout), days)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var (
		dates  []string
		closes []float64
	)
	for rows.Next() {
		var date string
		var close float64
		if err := rows.Scan(&date, &close); err != nil {
			return nil, "", fmt.Errorf("failed to scan daily price: %w", err)
		}
		dates = append(dates, date)
		closes = append(closes, close)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to iterate daily prices: %w", err)
	}

	// Reverse into ascending order.
	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}

	lastDate := ""
	if len(dates) > 0 {
		lastDate = dates[0] // dates[0] was the most recent before reversing closes
	}

	return closes, lastDate, nil
}

// refill fetches a generous window from the provider and upserts it into
// history.db. Weekends and holidays mean `days` trading days span more
// calendar days, hence the padding.
func (s *Service) refill(ctx context.Context, symbol string, end time.Time, days int) error {
	start := end.AddDate(0, 0, -(days*2 + 10))

	bars, err := s.fetcher.GetDailyBars(ctx, symbol, start, end)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Provider fetch failed")
		return fmt.Errorf("fetch failed for %s: %w", symbol, domain.ErrDataUnavailable)
	}
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.historyDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin price upsert: %w", err)
	}
	for _, bar := range bars {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO daily_prices (symbol, date, open, high, low, close, volume)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			bar.Symbol, bar.Date.Format(domain.DateLayout),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert price for %s: %w", symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price upsert: %w", err)
	}

	s.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Price history refilled")
	return nil
}

// LatestClose returns the most recent cached close for symbol, if any.
// Used to decorate discovery candidates; absence is not an error.
func (s *Service) LatestClose(ctx context.Context, symbol string) *float64 {
	var close float64
	err := s.historyDB.QueryRowContext(ctx,
		`SELECT close FROM daily_prices WHERE symbol = ? ORDER BY date DESC LIMIT 1`,
		symbol).Scan(&close)
	if err != nil {
		return nil
	}
	return &close
}
