package triggers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/internal/modules/triggers"
)

type fakeDispatcher struct {
	dispatched []triggers.Decision
	fresh      bool
	entered    chan struct{} // when set, receives once as Dispatch begins
	block      chan struct{} // when set, Dispatch waits until closed
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ string, d triggers.Decision) (bool, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.dispatched = append(f.dispatched, d)
	return f.fresh, nil
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	date, err := time.Parse(domain.DateLayout, s)
	require.NoError(t, err)
	return date
}

func TestRunDaily_CountsAndMarksFired(t *testing.T) {
	db := setupPlaybookDB(t)
	repo := triggers.NewRepository(db, testLogger())

	insertCard(t, db, domain.Card{ID: "c1", Direction: domain.DirectionLong})
	firedID, err := repo.Create(triggers.Rule{CardID: "c1", Symbol: "NVDA",
		Spec: triggers.PriceLevelSpec{Level: 100}})
	require.NoError(t, err)
	_, err = repo.Create(triggers.Rule{CardID: "c1", Symbol: "MSFT",
		Spec: triggers.PriceLevelSpec{Level: 999}})
	require.NoError(t, err)
	_, err = repo.Create(triggers.Rule{CardID: "c1", Symbol: "GONE",
		Spec: triggers.PriceLevelSpec{Level: 1}})
	require.NoError(t, err)
	_, err = repo.SetEnabledForCard("c1", true, "2026-08-28")
	require.NoError(t, err)

	prices := &fakePrices{series: map[string][]float64{
		"NVDA": {120},
		"MSFT": {400},
	}}
	dispatcher := &fakeDispatcher{fresh: true}
	runner := triggers.NewRunService(repo, triggers.NewEvaluator(prices, 2, testLogger()),
		dispatcher, testLogger())

	result, err := runner.RunDaily(context.Background(), mustDate(t, "2026-08-28"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Evaluated)
	assert.Equal(t, 1, result.Fired)
	assert.Equal(t, 1, result.Dispatched)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, "NVDA", dispatcher.dispatched[0].Rule.Symbol)

	armed, err := repo.GetArmed()
	require.NoError(t, err)
	for _, rule := range armed {
		if rule.ID == firedID {
			assert.Equal(t, "2026-08-28", rule.LastFiredDate)
		} else {
			assert.Empty(t, rule.LastFiredDate)
		}
	}
}

func TestRunDaily_SecondRunSameDayDispatchesNothing(t *testing.T) {
	db := setupPlaybookDB(t)
	repo := triggers.NewRepository(db, testLogger())

	insertCard(t, db, domain.Card{ID: "c1", Direction: domain.DirectionLong})
	_, err := repo.Create(triggers.Rule{CardID: "c1", Symbol: "NVDA",
		Spec: triggers.PriceLevelSpec{Level: 100}})
	require.NoError(t, err)
	_, err = repo.SetEnabledForCard("c1", true, "2026-08-28")
	require.NoError(t, err)

	prices := &fakePrices{series: map[string][]float64{"NVDA": {120}}}
	dispatcher := &fakeDispatcher{fresh: true}
	runner := triggers.NewRunService(repo, triggers.NewEvaluator(prices, 2, testLogger()),
		dispatcher, testLogger())

	day := mustDate(t, "2026-08-28")
	_, err = runner.RunDaily(context.Background(), day)
	require.NoError(t, err)

	second, err := runner.RunDaily(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Fired, "cooldown suppresses the second fire")
	assert.Len(t, dispatcher.dispatched, 1)

	// The next day the rule is live again.
	third, err := runner.RunDaily(context.Background(), mustDate(t, "2026-08-29"))
	require.NoError(t, err)
	assert.Equal(t, 1, third.Fired)
}

func TestRunDaily_ConcurrentRunRejected(t *testing.T) {
	db := setupPlaybookDB(t)
	repo := triggers.NewRepository(db, testLogger())

	insertCard(t, db, domain.Card{ID: "c1", Direction: domain.DirectionLong})
	_, err := repo.Create(triggers.Rule{CardID: "c1", Symbol: "NVDA",
		Spec: triggers.PriceLevelSpec{Level: 100}})
	require.NoError(t, err)
	_, err = repo.SetEnabledForCard("c1", true, "2026-08-28")
	require.NoError(t, err)

	prices := &fakePrices{series: map[string][]float64{"NVDA": {120}}}
	dispatcher := &fakeDispatcher{
		fresh:   true,
		entered: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
	runner := triggers.NewRunService(repo, triggers.NewEvaluator(prices, 1, testLogger()),
		dispatcher, testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = runner.RunDaily(context.Background(), mustDate(t, "2026-08-28"))
	}()

	// Wait until the background run is inside Dispatch and holds the lock,
	// then a second run must be turned away.
	select {
	case <-dispatcher.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("background run never reached Dispatch")
	}
	_, err = runner.RunDaily(context.Background(), mustDate(t, "2026-08-28"))
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	close(dispatcher.block)
	<-done

	_, err = runner.RunDaily(context.Background(), mustDate(t, "2026-08-29"))
	assert.NoError(t, err, "lock released after the run finishes")
}

func TestFireManualEvent(t *testing.T) {
	db := setupPlaybookDB(t)
	repo := triggers.NewRepository(db, testLogger())

	insertCard(t, db, domain.Card{ID: "c1", Direction: domain.DirectionLong})
	_, err := repo.Create(triggers.Rule{CardID: "c1",
		Spec: triggers.ManualEventSpec{EventType: "earnings_beat"}})
	require.NoError(t, err)
	_, err = repo.SetEnabledForCard("c1", true, "2026-08-28")
	require.NoError(t, err)

	dispatcher := &fakeDispatcher{fresh: true}
	runner := triggers.NewRunService(repo, triggers.NewEvaluator(&fakePrices{}, 1, testLogger()),
		dispatcher, testLogger())

	n, err := runner.FireManualEvent(context.Background(), "c1", "earnings_beat", "Q2 beat")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, dispatcher.dispatched, 1)
	assert.Contains(t, dispatcher.dispatched[0].ReasonEN, "earnings_beat")
	assert.Contains(t, dispatcher.dispatched[0].ReasonCN, "人工事件")

	// Same day again: cooldown absorbs it.
	n, err = runner.FireManualEvent(context.Background(), "c1", "earnings_beat", "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, dispatcher.dispatched, 1)

	_, err = runner.FireManualEvent(context.Background(), "c1", "no_such_event", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
