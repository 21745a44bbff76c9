package discovery

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/clients/embedding"
	"github.com/aristath/playbook/internal/config"
	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/internal/modules/universe"
)

// CardGetter looks up the card being queried. Implemented by the cards
// repository.
type CardGetter interface {
	Get(id string) (*domain.Card, error)
}

// Service answers find-similar queries against the current universe snapshot.
type Service struct {
	cards    CardGetter
	universe *universe.Service
	embedder embedding.Provider
	cache    *Cache
	weights  config.ScoringWeights
	log      zerolog.Logger
}

// NewService creates a discovery service. cache may be nil to disable caching.
func NewService(
	cards CardGetter,
	universeSvc *universe.Service,
	embedder embedding.Provider,
	cache *Cache,
	weights config.ScoringWeights,
	log zerolog.Logger,
) *Service {
	return &Service{
		cards:    cards,
		universe: universeSvc,
		embedder: embedder,
		cache:    cache,
		weights:  weights,
		log:      log.With().Str("service", "discovery").Logger(),
	}
}

// FindSimilar ranks snapshot instruments against a card. No snapshot means
// domain.ErrSnapshotUnavailable; a partial answer is never fabricated.
func (s *Service) FindSimilar(ctx context.Context, cardID string, topK int, minScore float64) (*Result, error) {
	snap, err := s.universe.Current()
	if err != nil {
		return nil, err
	}

	card, err := s.cards.Get(cardID)
	if err != nil {
		return nil, err
	}

	topK = ClampTopK(topK)
	minScore = ClampMinScore(minScore)

	if s.cache != nil {
		if cached := s.cache.Get(cardID, topK, minScore, snap.Version); cached != nil {
			return &Result{CardID: cardID, SnapshotVersion: snap.Version, Candidates: cached}, nil
		}
	}

	q := BuildQueryFeatures(card, snap)
	degraded := false
	if s.embedder != nil && q.Text != "" {
		vec, err := s.embedder.Embed(ctx, q.Text)
		if err != nil {
			// Degrade to tag-only scoring rather than failing the query.
			degraded = true
			s.log.Warn().Err(err).Str("card_id", cardID).
				Msg("Query embedding unavailable, scoring on tags only")
		} else {
			q.Embedding = vec
		}
	}

	candidates := Rank(q, snap, s.weights, topK, minScore)
	if candidates == nil {
		candidates = []Candidate{}
	}

	// A tag-only ranking must not outlive the outage that produced it, so
	// it is never cached.
	if s.cache != nil && !degraded {
		s.cache.Put(cardID, topK, minScore, snap.Version, candidates)
	}

	s.log.Debug().Str("card_id", cardID).Str("snapshot", snap.Version).
		Int("candidates", len(candidates)).Msg("Similarity query answered")

	return &Result{CardID: cardID, SnapshotVersion: snap.Version, Candidates: candidates}, nil
}
