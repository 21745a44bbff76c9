package triggers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
)

// Handlers provides HTTP handlers for rule management, the manual run trigger
// and manual events.
type Handlers struct {
	repo     *Repository
	runner   *RunService
	location *time.Location
	log      zerolog.Logger
}

// NewHandlers creates trigger HTTP handlers. The location decides what "today"
// means for a manually triggered run.
func NewHandlers(repo *Repository, runner *RunService, location *time.Location, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:     repo,
		runner:   runner,
		location: location,
		log:      log.With().Str("module", "triggers_handlers").Logger(),
	}
}

type createRuleRequest struct {
	CardID      string          `json:"card_id"`
	Symbol      string          `json:"symbol"`
	Kind        string          `json:"kind"`
	Invalidator bool            `json:"invalidator"`
	Params      json.RawMessage `json:"params"`
}

// HandleCreateRule validates and stores a new rule.
// POST /api/triggers
func (h *Handlers) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	spec, err := ParseSpec(req.Kind, req.Params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.repo.Create(Rule{
		CardID:      req.CardID,
		Symbol:      req.Symbol,
		Kind:        req.Kind,
		Invalidator: req.Invalidator,
		Spec:        spec,
	})
	if errors.Is(err, domain.ErrInvalidRule) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("card_id", req.CardID).Msg("Failed to create rule")
		http.Error(w, "Failed to create rule", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// HandleListRules returns the rules of a card.
// GET /api/cards/{id}/triggers
func (h *Handlers) HandleListRules(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "id")

	rules, err := h.repo.GetByCard(cardID)
	if err != nil {
		h.log.Error().Err(err).Str("card_id", cardID).Msg("Failed to list rules")
		http.Error(w, "Failed to list rules", http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []Rule{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rules)
}

// HandleRunNow runs today's evaluation on demand. A run already in flight
// responds 409.
// POST /api/triggers/run
func (h *Handlers) HandleRunNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.RunDaily(r.Context(), time.Now().In(h.location))
	if errors.Is(err, domain.ErrRunInProgress) {
		http.Error(w, "Evaluation run already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Manual trigger run failed")
		http.Error(w, "Evaluation run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

type manualEventRequest struct {
	CardID    string `json:"card_id"`
	EventType string `json:"event_type"`
	Note      string `json:"note,omitempty"`
}

// HandleManualEvent fires a card's manual_event rules for an event type.
// POST /api/events
func (h *Handlers) HandleManualEvent(w http.ResponseWriter, r *http.Request) {
	var req manualEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CardID == "" || req.EventType == "" {
		http.Error(w, "card_id and event_type are required", http.StatusBadRequest)
		return
	}

	dispatched, err := h.runner.FireManualEvent(r.Context(), req.CardID, req.EventType, req.Note)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "No armed manual_event rule matches", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("card_id", req.CardID).Msg("Failed to fire manual event")
		http.Error(w, "Failed to fire manual event", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"card_id":    req.CardID,
		"event_type": req.EventType,
		"dispatched": dispatched,
	})
}
