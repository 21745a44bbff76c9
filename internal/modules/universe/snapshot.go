package universe

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/clients/embedding"
	"github.com/aristath/playbook/internal/domain"
)

// Snapshot is an immutable, versioned view of the instrument universe.
// All discovery queries against one version return identical results.
type Snapshot struct {
	Version     string
	BuiltAt     time.Time
	Instruments []Instrument

	bySymbol map[string]*Instrument
}

// Get returns the instrument for a symbol, or nil when absent.
func (s *Snapshot) Get(symbol string) *Instrument {
	return s.bySymbol[symbol]
}

// Size returns the number of instruments in the snapshot.
func (s *Snapshot) Size() int {
	return len(s.Instruments)
}

// Service owns the current universe snapshot. Readers get a consistent view
// via Current; Rebuild swaps in a fresh snapshot atomically so in-flight
// queries keep whatever version they started with.
type Service struct {
	repo     *Repository
	embedder embedding.Provider
	current  atomic.Pointer[Snapshot]
	log      zerolog.Logger
}

// NewService creates a universe service. No snapshot exists until the first
// Rebuild completes.
func NewService(repo *Repository, embedder embedding.Provider, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		log:      log.With().Str("service", "universe").Logger(),
	}
}

// Current returns the active snapshot, or ErrSnapshotUnavailable when no
// rebuild has succeeded yet.
func (s *Service) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, domain.ErrSnapshotUnavailable
	}
	return snap, nil
}

// Rebuild loads the full catalogue, fills in any missing embeddings, and
// atomically publishes a new snapshot version.
func (s *Service) Rebuild(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	instruments, err := s.repo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	embedded := 0
	for i := range instruments {
		if len(instruments[i].Embedding) > 0 {
			continue
		}
		if s.embedder == nil {
			continue
		}

		vec, err := s.embedder.Embed(ctx, instruments[i].EmbedText())
		if err != nil {
			// A missing embedding degrades the text term to zero for this
			// instrument but must not block the snapshot.
			s.log.Warn().Err(err).
				Str("symbol", instruments[i].Symbol).
				Msg("Failed to embed instrument, text similarity will be zero")
			continue
		}

		instruments[i].Embedding = vec
		embedded++
		if err := s.repo.SaveEmbedding(instruments[i].Symbol, vec); err != nil {
			s.log.Warn().Err(err).
				Str("symbol", instruments[i].Symbol).
				Msg("Failed to persist embedding")
		}
	}

	snap := &Snapshot{
		Version:     uuid.New().String(),
		BuiltAt:     time.Now().UTC(),
		Instruments: instruments,
		bySymbol:    make(map[string]*Instrument, len(instruments)),
	}
	for i := range snap.Instruments {
		snap.bySymbol[snap.Instruments[i].Symbol] = &snap.Instruments[i]
	}

	s.current.Store(snap)

	s.log.Info().
		Str("version", snap.Version).
		Int("instruments", len(instruments)).
		Int("newly_embedded", embedded).
		Dur("elapsed", time.Since(start)).
		Msg("Universe snapshot rebuilt")

	return snap, nil
}
