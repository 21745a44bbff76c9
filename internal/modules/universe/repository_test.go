package universe_test

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/playbook/internal/modules/universe"
)

func setupUniverseDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE instruments (
			symbol TEXT PRIMARY KEY,
			venue TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL,
			embedding BLOB,
			latest_px REAL,
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

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestRepository_UpsertAndGet(t *testing.T) {
	db := setupUniverseDB(t)
	repo := universe.NewRepository(db, testLogger())

	px := 182.5
	inst := universe.Instrument{
		Symbol: "aapl",
		Venue:  "NASDAQ",
		NameEN: "Apple Inc.",
		NameCN: "苹果公司",
		Tags: universe.Tags{
			Themes:          []string{"consumer_electronics", "ai_devices"},
			Catalysts:       []string{"product_launch"},
			Geography:       []string{universe.GeoUS},
			SupplyChainRole: universe.RoleDownstream,
		},
		LatestPrice: &px,
	}

	require.NoError(t, repo.Upsert(inst))

	// Symbol is normalised to upper case on write.
	got, err := repo.GetBySymbol("AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, "Apple Inc.", got.NameEN)
	assert.Equal(t, "苹果公司", got.NameCN)
	assert.Equal(t, []string{"consumer_electronics", "ai_devices"}, got.Tags.Themes)
	assert.Equal(t, universe.RoleDownstream, got.Tags.SupplyChainRole)
	require.NotNil(t, got.LatestPrice)
	assert.InDelta(t, 182.5, *got.LatestPrice, 1e-9)
}

func TestRepository_GetBySymbol_Missing(t *testing.T) {
	db := setupUniverseDB(t)
	repo := universe.NewRepository(db, testLogger())

	got, err := repo.GetBySymbol("NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_Upsert_PreservesEmbeddingWhenUnchanged(t *testing.T) {
	db := setupUniverseDB(t)
	repo := universe.NewRepository(db, testLogger())

	inst := universe.Instrument{
		Symbol: "NVDA",
		Venue:  "NASDAQ",
		NameEN: "NVIDIA Corp",
		Tags:   universe.Tags{Themes: []string{"ai_compute"}},
	}
	require.NoError(t, repo.Upsert(inst))
	require.NoError(t, repo.SaveEmbedding("NVDA", []float64{0.1, 0.2, 0.3}))

	// Price-only update keeps the stored vector.
	px := 900.0
	inst.LatestPrice = &px
	require.NoError(t, repo.Upsert(inst))

	got, err := repo.GetBySymbol("NVDA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got.Embedding)

	// Tag change invalidates the vector.
	inst.Tags.Themes = []string{"ai_compute", "datacenter"}
	require.NoError(t, repo.Upsert(inst))

	got, err = repo.GetBySymbol("NVDA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Embedding)
}

func TestRepository_GetAll_OrderedBySymbol(t *testing.T) {
	db := setupUniverseDB(t)
	repo := universe.NewRepository(db, testLogger())

	for _, sym := range []string{"MSFT", "AAPL", "NVDA"} {
		require.NoError(t, repo.Upsert(universe.Instrument{Symbol: sym, Venue: "NASDAQ"}))
	}

	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "AAPL", all[0].Symbol)
	assert.Equal(t, "MSFT", all[1].Symbol)
	assert.Equal(t, "NVDA", all[2].Symbol)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRepository_Upsert_RequiresSymbol(t *testing.T) {
	db := setupUniverseDB(t)
	repo := universe.NewRepository(db, testLogger())

	err := repo.Upsert(universe.Instrument{Symbol: "  "})
	assert.Error(t, err)
}
