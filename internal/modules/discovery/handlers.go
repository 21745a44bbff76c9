package discovery

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
)

// Handlers provides HTTP handlers for similarity queries.
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates discovery HTTP handlers.
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("module", "discovery_handlers").Logger(),
	}
}

// HandleFindSimilar ranks instruments similar to a card's thesis.
// GET /api/cards/{id}/similar?top_k=&min_score=
func (h *Handlers) HandleFindSimilar(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "id")

	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "top_k must be an integer", http.StatusBadRequest)
			return
		}
		topK = parsed
	}

	minScore := 0.0
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "min_score must be a number", http.StatusBadRequest)
			return
		}
		minScore = parsed
	}

	result, err := h.service.FindSimilar(r.Context(), cardID, topK, minScore)
	if errors.Is(err, domain.ErrSnapshotUnavailable) {
		// An explicit 503, never an empty list: the caller must be able to
		// tell "no matches" from "no universe to match against".
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "universe snapshot unavailable, rebuild the universe first",
		})
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "Card not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("card_id", cardID).Msg("Similarity query failed")
		http.Error(w, "Similarity query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
