package universe_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/internal/modules/universe"
)

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.calls++
	// Deterministic toy vector derived from the text length.
	return []float64{float64(len(text)), 1, 0}, nil
}

func TestService_Current_BeforeRebuild(t *testing.T) {
	db := setupUniverseDB(t)
	repo := universe.NewRepository(db, testLogger())
	svc := universe.NewService(repo, &fakeEmbedder{}, testLogger())

	_, err := svc.Current()
	assert.ErrorIs(t, err, domain.ErrSnapshotUnavailable)
}

func TestService_Rebuild_EmbedsMissingVectors(t *testing.T) {
	db := setupUniverseDB(t)
	repo := universe.NewRepository(db, testLogger())

	require.NoError(t, repo.Upsert(universe.Instrument{Symbol: "AAPL", NameEN: "Apple Inc."}))
	require.NoError(t, repo.Upsert(universe.Instrument{Symbol: "NVDA", NameEN: "NVIDIA Corp"}))
	require.NoError(t, repo.SaveEmbedding("AAPL", []float64{1, 0, 0}))

	emb := &fakeEmbedder{}
	svc := universe.NewService(repo, emb, testLogger())

	snap, err := svc.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Size())
	assert.Equal(t, 1, emb.calls, "only the instrument without a stored vector is embedded")

	// The computed vector is persisted for the next rebuild.
	got, err := repo.GetBySymbol("NVDA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotEmpty(t, got.Embedding)
}

func TestService_Rebuild_SwapsVersionAtomically(t *testing.T) {
	db := setupUniverseDB(t)
	repo := universe.NewRepository(db, testLogger())
	require.NoError(t, repo.Upsert(universe.Instrument{Symbol: "AAPL"}))

	svc := universe.NewService(repo, &fakeEmbedder{}, testLogger())

	first, err := svc.Rebuild(context.Background())
	require.NoError(t, err)

	held, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, first.Version, held.Version)

	second, err := svc.Rebuild(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Version, second.Version)

	// The previously obtained snapshot is untouched by the swap.
	assert.Equal(t, first.Version, held.Version)

	current, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, second.Version, current.Version)
	assert.NotNil(t, current.Get("AAPL"))
	assert.Nil(t, current.Get("MSFT"))
}
