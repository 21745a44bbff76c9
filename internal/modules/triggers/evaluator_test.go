package triggers_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/internal/modules/triggers"
)

// fakePrices serves fixed close series. The last element is the close of the
// evaluation day.
type fakePrices struct {
	series map[string][]float64
}

func (f *fakePrices) Close(_ context.Context, symbol string, _ time.Time) (float64, error) {
	s, ok := f.series[symbol]
	if !ok || len(s) == 0 {
		return 0, domain.ErrDataUnavailable
	}
	return s[len(s)-1], nil
}

func (f *fakePrices) CloseSeries(_ context.Context, symbol string, _ time.Time, days int) ([]float64, error) {
	s, ok := f.series[symbol]
	if !ok {
		return nil, domain.ErrDataUnavailable
	}
	if len(s) > days {
		s = s[len(s)-days:]
	}
	return s, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func evalDay(t *testing.T, prices *fakePrices, rules ...triggers.Rule) []triggers.Decision {
	t.Helper()
	eval := triggers.NewEvaluator(prices, 4, testLogger())
	date, err := time.Parse(domain.DateLayout, "2026-08-28")
	require.NoError(t, err)
	return eval.Evaluate(context.Background(), date, rules)
}

func TestPriceLevel_LongFiresAtOrAboveLevel(t *testing.T) {
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction: domain.DirectionLong,
		Spec:      triggers.PriceLevelSpec{Level: 100},
	}

	for _, tc := range []struct {
		close float64
		fired bool
	}{
		{99.99, false},
		{100.0, true}, // boundary is inclusive
		{101.5, true},
	} {
		prices := &fakePrices{series: map[string][]float64{"NVDA": {tc.close}}}
		d := evalDay(t, prices, rule)[0]
		assert.Equal(t, tc.fired, d.Fired, "close %v", tc.close)
		if tc.fired {
			assert.Equal(t, tc.close, d.Price)
			assert.NotEmpty(t, d.ReasonEN)
			assert.NotEmpty(t, d.ReasonCN)
		}
	}
}

func TestPriceLevel_ShortFiresAtOrBelowLevel(t *testing.T) {
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction: domain.DirectionShort,
		Spec:      triggers.PriceLevelSpec{Level: 100},
	}

	prices := &fakePrices{series: map[string][]float64{"NVDA": {100.0}}}
	assert.True(t, evalDay(t, prices, rule)[0].Fired)

	prices = &fakePrices{series: map[string][]float64{"NVDA": {100.01}}}
	assert.False(t, evalDay(t, prices, rule)[0].Fired)
}

func TestDrawdown_FiresAtExactBoundary(t *testing.T) {
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction: domain.DirectionLong,
		Spec:      triggers.DrawdownSpec{Pct: 10, WindowDays: 5},
	}

	// Window high 20, current 18: exactly a 10% drawdown fires.
	prices := &fakePrices{series: map[string][]float64{"NVDA": {19, 20, 19.5, 19, 18}}}
	d := evalDay(t, prices, rule)[0]
	require.True(t, d.Fired)
	assert.Equal(t, 18.0, d.Price)

	// 18.01 is inside the limit.
	prices = &fakePrices{series: map[string][]float64{"NVDA": {19, 20, 19.5, 19, 18.01}}}
	assert.False(t, evalDay(t, prices, rule)[0].Fired)
}

func TestDrawdown_WindowIncludesCurrentDay(t *testing.T) {
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction: domain.DirectionLong,
		Spec:      triggers.DrawdownSpec{Pct: 10, WindowDays: 3},
	}

	// The current day is the window high itself, so drawdown is zero.
	prices := &fakePrices{series: map[string][]float64{"NVDA": {15, 16, 25}}}
	assert.False(t, evalDay(t, prices, rule)[0].Fired)
}

func TestDrawdown_ShortSeriesSkips(t *testing.T) {
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction: domain.DirectionLong,
		Spec:      triggers.DrawdownSpec{Pct: 10, WindowDays: 5},
	}

	prices := &fakePrices{series: map[string][]float64{"NVDA": {20, 18}}}
	d := evalDay(t, prices, rule)[0]
	assert.False(t, d.Fired)
	assert.True(t, d.Skipped)
}

func TestMACross_FiresOnlyOnCrossDay(t *testing.T) {
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction: domain.DirectionLong,
		Spec:      triggers.MACrossSpec{ShortWindow: 2, LongWindow: 3},
	}

	// Yesterday (closes 9,8,9): SMA2 8.5 < SMA3 8.67. Today (closes 8,9,12):
	// SMA2 10.5 > SMA3 9.67. Cross up fires.
	prices := &fakePrices{series: map[string][]float64{"NVDA": {10, 9, 8, 9, 12}}}
	d := evalDay(t, prices, rule)[0]
	require.True(t, d.Fired)
	assert.Equal(t, 12.0, d.Price)

	// Already above yesterday: no new cross, no fire.
	prices = &fakePrices{series: map[string][]float64{"NVDA": {8, 9, 12, 13}}}
	assert.False(t, evalDay(t, prices, rule)[0].Fired)
}

func TestMACross_ZeroBoundaries(t *testing.T) {
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction: domain.DirectionLong,
		Spec:      triggers.MACrossSpec{ShortWindow: 1, LongWindow: 2},
	}

	// closes 12, 8, 10: yesterday diff 8-10 = -2, today diff 10-9 = +1. Fires.
	prices := &fakePrices{series: map[string][]float64{"NVDA": {12, 8, 10}}}
	assert.True(t, evalDay(t, prices, rule)[0].Fired)

	// Flat series: diffs are zero on both days, no cross.
	prices = &fakePrices{series: map[string][]float64{"NVDA": {10, 10, 10}}}
	assert.False(t, evalDay(t, prices, rule)[0].Fired)
}

func TestMACross_InsufficientHistorySkips(t *testing.T) {
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction: domain.DirectionLong,
		Spec:      triggers.MACrossSpec{ShortWindow: 5, LongWindow: 20},
	}

	prices := &fakePrices{series: map[string][]float64{"NVDA": {10, 11, 12}}}
	d := evalDay(t, prices, rule)[0]
	assert.False(t, d.Fired)
	assert.True(t, d.Skipped)
}

func TestTimeStop_CountsTradingDays(t *testing.T) {
	// 2026-08-28 is a Friday. Armed the Friday before: Mon-Fri = 5 trading days.
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction:  domain.DirectionLong,
		ArmedSince: "2026-08-21",
		Spec:       triggers.TimeStopSpec{Days: 5},
	}

	prices := &fakePrices{series: map[string][]float64{}}
	d := evalDay(t, prices, rule)[0]
	assert.True(t, d.Fired, "5 weekdays elapsed meets a 5-day stop")

	rule.Spec = triggers.TimeStopSpec{Days: 6}
	assert.False(t, evalDay(t, prices, rule)[0].Fired)
}

func TestTimeStop_WeekendDoesNotCount(t *testing.T) {
	// Armed Friday 2026-08-21, evaluated Monday 2026-08-24: one trading day.
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction:  domain.DirectionLong,
		ArmedSince: "2026-08-21",
		Spec:       triggers.TimeStopSpec{Days: 1},
	}

	eval := triggers.NewEvaluator(&fakePrices{}, 1, testLogger())
	monday, err := time.Parse(domain.DateLayout, "2026-08-24")
	require.NoError(t, err)
	d := eval.Evaluate(context.Background(), monday, []triggers.Rule{rule})[0]
	assert.True(t, d.Fired)

	sunday, err := time.Parse(domain.DateLayout, "2026-08-23")
	require.NoError(t, err)
	d = eval.Evaluate(context.Background(), sunday, []triggers.Rule{rule})[0]
	assert.False(t, d.Fired, "only the weekend elapsed")
}

func TestManualEvent_NeverFiresFromPrices(t *testing.T) {
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction: domain.DirectionLong,
		Spec:      triggers.ManualEventSpec{EventType: "earnings_beat"},
	}

	prices := &fakePrices{series: map[string][]float64{"NVDA": {100, 200, 300}}}
	d := evalDay(t, prices, rule)[0]
	assert.False(t, d.Fired)
	assert.False(t, d.Skipped)
}

func TestEvaluate_CooldownSkipsSameDay(t *testing.T) {
	rule := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "NVDA",
		Direction:     domain.DirectionLong,
		LastFiredDate: "2026-08-28",
		Spec:          triggers.PriceLevelSpec{Level: 100},
	}

	prices := &fakePrices{series: map[string][]float64{"NVDA": {150}}}
	d := evalDay(t, prices, rule)[0]
	assert.False(t, d.Fired, "already fired today")

	// A prior-day fire does not block today.
	rule.LastFiredDate = "2026-08-27"
	assert.True(t, evalDay(t, prices, rule)[0].Fired)
}

func TestEvaluate_MissingDataSkipsOtherRulesUnaffected(t *testing.T) {
	missing := triggers.Rule{
		ID: "r1", CardID: "c1", Symbol: "GONE",
		Direction: domain.DirectionLong,
		Spec:      triggers.PriceLevelSpec{Level: 100},
	}
	healthy := triggers.Rule{
		ID: "r2", CardID: "c1", Symbol: "NVDA",
		Direction: domain.DirectionLong,
		Spec:      triggers.PriceLevelSpec{Level: 100},
	}

	prices := &fakePrices{series: map[string][]float64{"NVDA": {120}}}
	decisions := evalDay(t, prices, missing, healthy)
	assert.True(t, decisions[0].Skipped)
	assert.False(t, decisions[0].Fired)
	assert.True(t, decisions[1].Fired)
}
