package prices_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/internal/services/prices"
)

func setupHistoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE daily_prices (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, date)
		)
	`)
	require.NoError(t, err)

	return db
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// fakeFetcher serves a fixed bar series and counts provider round trips.
type fakeFetcher struct {
	bars  []domain.OHLC
	err   error
	calls int
}

func (f *fakeFetcher) GetDailyBars(_ context.Context, symbol string, start, end time.Time) ([]domain.OHLC, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.OHLC
	for _, bar := range f.bars {
		if bar.Symbol != symbol || bar.Date.Before(start) || bar.Date.After(end) {
			continue
		}
		out = append(out, bar)
	}
	return out, nil
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func bar(symbol, date string, close float64) domain.OHLC {
	return domain.OHLC{
		Symbol: symbol,
		Date:   day(date),
		Open:   close,
		High:   close,
		Low:    close,
		Close:  close,
		Volume: 1000,
	}
}

func insertBar(t *testing.T, db *sql.DB, b domain.OHLC) {
	t.Helper()
	_, err := db.Exec(
		`INSERT OR REPLACE INTO daily_prices (symbol, date, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.Symbol, b.Date.Format(domain.DateLayout), b.Open, b.High, b.Low, b.Close, b.Volume)
	require.NoError(t, err)
}

func TestCloseSeries_ServedFromHistory(t *testing.T) {
	db := setupHistoryDB(t)
	fetcher := &fakeFetcher{}
	svc := prices.New(fetcher, db, testLogger())

	insertBar(t, db, bar("NVDA", "2026-08-26", 100))
	insertBar(t, db, bar("NVDA", "2026-08-27", 102))
	insertBar(t, db, bar("NVDA", "2026-08-28", 104))

	closes, err := svc.CloseSeries(context.Background(), "NVDA", day("2026-08-28"), 3)
	require.NoError(t, err)

	assert.Equal(t, []float64{100, 102, 104}, closes)
	assert.Equal(t, 0, fetcher.calls, "cached series should not touch the provider")
}

func TestCloseSeries_RefillsFromProvider(t *testing.T) {
	db := setupHistoryDB(t)
	fetcher := &fakeFetcher{bars: []domain.OHLC{
		bar("NVDA", "2026-08-26", 100),
		bar("NVDA", "2026-08-27", 102),
		bar("NVDA", "2026-08-28", 104),
	}}
	svc := prices.New(fetcher, db, testLogger())

	closes, err := svc.CloseSeries(context.Background(), "NVDA", day("2026-08-28"), 3)
	require.NoError(t, err)

	assert.Equal(t, []float64{100, 102, 104}, closes)
	assert.Equal(t, 1, fetcher.calls)

	// The refill lands in history, so the second read is cache only.
	closes, err = svc.CloseSeries(context.Background(), "NVDA", day("2026-08-28"), 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 102, 104}, closes)
	assert.Equal(t, 1, fetcher.calls)
}

func TestCloseSeries_StaleDataIsUnavailable(t *testing.T) {
	db := setupHistoryDB(t)
	// Provider has nothing newer than the 27th.
	fetcher := &fakeFetcher{bars: []domain.OHLC{
		bar("NVDA", "2026-08-27", 102),
	}}
	svc := prices.New(fetcher, db, testLogger())

	// A series ending on the 28th cannot be served: the last bar must be
	// the requested day, not just any recent day.
	_, err := svc.CloseSeries(context.Background(), "NVDA", day("2026-08-28"), 2)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestCloseSeries_UnknownSymbol(t *testing.T) {
	db := setupHistoryDB(t)
	fetcher := &fakeFetcher{}
	svc := prices.New(fetcher, db, testLogger())

	_, err := svc.CloseSeries(context.Background(), "NOPE", day("2026-08-28"), 1)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Equal(t, 1, fetcher.calls, "miss should try the provider once")
}

func TestCloseSeries_ProviderErrorIsUnavailable(t *testing.T) {
	db := setupHistoryDB(t)
	fetcher := &fakeFetcher{err: context.DeadlineExceeded}
	svc := prices.New(fetcher, db, testLogger())

	_, err := svc.CloseSeries(context.Background(), "NVDA", day("2026-08-28"), 1)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestClose_SingleDay(t *testing.T) {
	db := setupHistoryDB(t)
	svc := prices.New(&fakeFetcher{}, db, testLogger())

	insertBar(t, db, bar("TSM", "2026-08-28", 180.5))

	close, err := svc.Close(context.Background(), "TSM", day("2026-08-28"))
	require.NoError(t, err)
	assert.Equal(t, 180.5, close)
}

func TestLatestClose(t *testing.T) {
	db := setupHistoryDB(t)
	svc := prices.New(&fakeFetcher{}, db, testLogger())

	assert.Nil(t, svc.LatestClose(context.Background(), "NVDA"))

	insertBar(t, db, bar("NVDA", "2026-08-27", 102))
	insertBar(t, db, bar("NVDA", "2026-08-28", 104))

	latest := svc.LatestClose(context.Background(), "NVDA")
	require.NotNil(t, latest)
	assert.Equal(t, 104.0, *latest)
}
