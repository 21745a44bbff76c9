package cards_test

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/internal/modules/cards"
)

func setupCardsDB(t *testing.T) *sql.DB {
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
	`)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

type fakeArmer struct {
	lastCardID  string
	lastEnabled bool
	lastArmed   string
	rules       int
}

func (f *fakeArmer) SetEnabledForCard(cardID string, enabled bool, armedSince string) (int, error) {
	f.lastCardID = cardID
	f.lastEnabled = enabled
	f.lastArmed = armedSince
	return f.rules, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func sampleCard() domain.Card {
	return domain.Card{
		ID:        "card-1",
		AsOf:      "2026-08-28",
		Direction: domain.DirectionLong,
		Horizon:   "3m",
		SummaryEN: "AI datacenter capex cycle",
		Instruments: []domain.InstrumentRef{
			{Symbol: "NVDA", Venue: "NASDAQ", Role: "primary"},
		},
		Confidence: 0.7,
	}
}

func TestRepository_SaveAndGet(t *testing.T) {
	db := setupCardsDB(t)
	repo := cards.NewRepository(db, testLogger())

	require.NoError(t, repo.Save(sampleCard()))

	got, err := repo.Get("card-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionLong, got.Direction)
	assert.Equal(t, []string{"NVDA"}, got.Symbols())

	_, err = repo.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_Save_RejectsInvalidDirection(t *testing.T) {
	db := setupCardsDB(t)
	repo := cards.NewRepository(db, testLogger())

	card := sampleCard()
	card.Direction = "sideways"
	assert.Error(t, repo.Save(card))
}

func TestService_EnableAlerts_ArmsRules(t *testing.T) {
	db := setupCardsDB(t)
	repo := cards.NewRepository(db, testLogger())
	armer := &fakeArmer{rules: 3}
	svc := cards.NewService(repo, armer, testLogger())

	require.NoError(t, repo.Save(sampleCard()))

	armed, err := svc.EnableAlerts("card-1", cards.AlertOptions{
		Channels:     []string{"email", "webhook"},
		AutoEntry:    true,
		AutoEntryQty: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, armed)
	assert.Equal(t, "card-1", armer.lastCardID)
	assert.True(t, armer.lastEnabled)
	assert.NotEmpty(t, armer.lastArmed)

	got, err := repo.Get("card-1")
	require.NoError(t, err)
	assert.True(t, got.AlertsEnabled)
	assert.Equal(t, []string{"email", "webhook"}, got.Channels)
	assert.True(t, got.AutoEntry)
	assert.InDelta(t, 10, got.AutoEntryQty, 1e-9)
}

func TestService_EnableAlerts_DefaultsAndValidation(t *testing.T) {
	db := setupCardsDB(t)
	repo := cards.NewRepository(db, testLogger())
	svc := cards.NewService(repo, &fakeArmer{}, testLogger())

	require.NoError(t, repo.Save(sampleCard()))

	// No channels given falls back to webhook.
	_, err := svc.EnableAlerts("card-1", cards.AlertOptions{})
	require.NoError(t, err)
	got, err := repo.Get("card-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"webhook"}, got.Channels)

	_, err = svc.EnableAlerts("card-1", cards.AlertOptions{Channels: []string{"pager"}})
	assert.Error(t, err)

	_, err = svc.EnableAlerts("card-1", cards.AlertOptions{AutoEntry: true})
	assert.Error(t, err, "auto entry without a quantity is rejected")

	_, err = svc.EnableAlerts("missing", cards.AlertOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_DisableAlerts_KeepsCard(t *testing.T) {
	db := setupCardsDB(t)
	repo := cards.NewRepository(db, testLogger())
	armer := &fakeArmer{rules: 2}
	svc := cards.NewService(repo, armer, testLogger())

	require.NoError(t, repo.Save(sampleCard()))
	_, err := svc.EnableAlerts("card-1", cards.AlertOptions{})
	require.NoError(t, err)

	disarmed, err := svc.DisableAlerts("card-1")
	require.NoError(t, err)
	assert.Equal(t, 2, disarmed)
	assert.False(t, armer.lastEnabled)

	got, err := repo.Get("card-1")
	require.NoError(t, err)
	assert.False(t, got.AlertsEnabled)
	// Channel preferences survive a disable so a re-enable restores them.
	assert.Equal(t, []string{"webhook"}, got.Channels)
}
