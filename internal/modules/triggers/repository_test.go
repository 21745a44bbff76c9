package triggers_test

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/internal/modules/triggers"
)

func setupPlaybookDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE cards (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE trigger_rules (
			id TEXT PRIMARY KEY,
			card_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			kind TEXT NOT NULL,
			invalidator INTEGER NOT NULL DEFAULT 0,
			params TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 0,
			armed_since TEXT,
			last_fired_date TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func insertCard(t *testing.T, db *sql.DB, card domain.Card) {
	t.Helper()
	data, err := json.Marshal(card)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO cards (id, data, created_at, updated_at) VALUES (?, ?, '', '')",
		card.ID, string(data))
	require.NoError(t, err)
}

func TestRepository_CreateAndGetArmed(t *testing.T) {
	db := setupPlaybookDB(t)
	repo := triggers.NewRepository(db, testLogger())

	insertCard(t, db, domain.Card{ID: "c1", Direction: domain.DirectionShort})

	id, err := repo.Create(triggers.Rule{
		CardID: "c1", Symbol: "NVDA",
		Spec: triggers.PriceLevelSpec{Level: 90},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Not armed yet.
	armed, err := repo.GetArmed()
	require.NoError(t, err)
	assert.Empty(t, armed)

	n, err := repo.SetEnabledForCard("c1", true, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	armed, err = repo.GetArmed()
	require.NoError(t, err)
	require.Len(t, armed, 1)
	assert.Equal(t, "NVDA", armed[0].Symbol)
	assert.Equal(t, domain.DirectionShort, armed[0].Direction, "direction comes from the owning card")
	assert.Equal(t, "2026-08-28", armed[0].ArmedSince)
	assert.Equal(t, triggers.PriceLevelSpec{Level: 90}, armed[0].Spec)
}

func TestRepository_Create_RejectsInvalid(t *testing.T) {
	db := setupPlaybookDB(t)
	repo := triggers.NewRepository(db, testLogger())

	_, err := repo.Create(triggers.Rule{CardID: "c1", Symbol: "NVDA",
		Spec: triggers.DrawdownSpec{Pct: 0, WindowDays: 20}})
	assert.ErrorIs(t, err, domain.ErrInvalidRule)

	_, err = repo.Create(triggers.Rule{Symbol: "NVDA",
		Spec: triggers.PriceLevelSpec{Level: 100}})
	assert.ErrorIs(t, err, domain.ErrInvalidRule, "card_id required")

	_, err = repo.Create(triggers.Rule{CardID: "c1", Symbol: "NVDA"})
	assert.ErrorIs(t, err, domain.ErrInvalidRule, "spec required")

	_, err = repo.Create(triggers.Rule{CardID: "c1",
		Spec: triggers.PriceLevelSpec{Level: 100}})
	assert.ErrorIs(t, err, domain.ErrInvalidRule, "price rules need a symbol")
}

func TestRepository_Create_ManualEventWithoutSymbol(t *testing.T) {
	db := setupPlaybookDB(t)
	repo := triggers.NewRepository(db, testLogger())
	insertCard(t, db, domain.Card{ID: "c1", Direction: domain.DirectionLong})

	// Manual events are card-level, not tied to a ticker. The spec decides
	// the kind; callers do not have to fill the redundant Kind field.
	id, err := repo.Create(triggers.Rule{CardID: "c1",
		Spec: triggers.ManualEventSpec{EventType: "earnings_beat"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestRepository_ReenableKeepsArmedSince(t *testing.T) {
	db := setupPlaybookDB(t)
	repo := triggers.NewRepository(db, testLogger())

	insertCard(t, db, domain.Card{ID: "c1", Direction: domain.DirectionLong})
	_, err := repo.Create(triggers.Rule{CardID: "c1", Symbol: "NVDA",
		Spec: triggers.TimeStopSpec{Days: 30}})
	require.NoError(t, err)

	_, err = repo.SetEnabledForCard("c1", true, "2026-08-01")
	require.NoError(t, err)
	_, err = repo.SetEnabledForCard("c1", false, "")
	require.NoError(t, err)
	_, err = repo.SetEnabledForCard("c1", true, "2026-08-28")
	require.NoError(t, err)

	armed, err := repo.GetArmed()
	require.NoError(t, err)
	require.Len(t, armed, 1)
	// Re-arming does not reset the time_stop clock.
	assert.Equal(t, "2026-08-01", armed[0].ArmedSince)
}

func TestRepository_MarkFired(t *testing.T) {
	db := setupPlaybookDB(t)
	repo := triggers.NewRepository(db, testLogger())

	insertCard(t, db, domain.Card{ID: "c1", Direction: domain.DirectionLong})
	id, err := repo.Create(triggers.Rule{CardID: "c1", Symbol: "NVDA",
		Spec: triggers.PriceLevelSpec{Level: 100}})
	require.NoError(t, err)
	_, err = repo.SetEnabledForCard("c1", true, "2026-08-28")
	require.NoError(t, err)

	require.NoError(t, repo.MarkFired(id, "2026-08-28"))

	armed, err := repo.GetArmed()
	require.NoError(t, err)
	require.Len(t, armed, 1)
	assert.Equal(t, "2026-08-28", armed[0].LastFiredDate)
}

func TestRepository_GetArmedManualEvent(t *testing.T) {
	db := setupPlaybookDB(t)
	repo := triggers.NewRepository(db, testLogger())

	insertCard(t, db, domain.Card{ID: "c1", Direction: domain.DirectionLong})
	_, err := repo.Create(triggers.Rule{CardID: "c1",
		Spec: triggers.ManualEventSpec{EventType: "earnings_beat"}})
	require.NoError(t, err)
	_, err = repo.Create(triggers.Rule{CardID: "c1",
		Spec: triggers.ManualEventSpec{EventType: "guidance_cut"}})
	require.NoError(t, err)
	_, err = repo.SetEnabledForCard("c1", true, "2026-08-28")
	require.NoError(t, err)

	matched, err := repo.GetArmedManualEvent("c1", "earnings_beat")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, triggers.ManualEventSpec{EventType: "earnings_beat"}, matched[0].Spec)

	matched, err = repo.GetArmedManualEvent("c1", "unrelated")
	require.NoError(t, err)
	assert.Empty(t, matched)
}
