package cards

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
)

// Handlers provides HTTP handlers for card management and alert toggles.
type Handlers struct {
	repo    *Repository
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates card HTTP handlers.
func NewHandlers(repo *Repository, service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:    repo,
		service: service,
		log:     log.With().Str("module", "cards_handlers").Logger(),
	}
}

// HandleListCards returns all cards.
// GET /api/cards
func (h *Handlers) HandleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.repo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list cards")
		http.Error(w, "Failed to list cards", http.StatusInternalServerError)
		return
	}
	if cards == nil {
		cards = []domain.Card{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cards)
}

// HandleGetCard returns a single card.
// GET /api/cards/{id}
func (h *Handlers) HandleGetCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	card, err := h.repo.Get(id)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "Card not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("card_id", id).Msg("Failed to fetch card")
		http.Error(w, "Failed to fetch card", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(card)
}

// HandleSaveCard stores a card.
// POST /api/cards
func (h *Handlers) HandleSaveCard(w http.ResponseWriter, r *http.Request) {
	var card domain.Card
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.repo.Save(card); err != nil {
		h.log.Error().Err(err).Str("card_id", card.ID).Msg("Failed to save card")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "id": card.ID})
}

// HandleEnableAlerts arms a card's trigger rules.
// POST /api/alerts/enable/{card_id}
func (h *Handlers) HandleEnableAlerts(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "card_id")

	var opts AlertOptions
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	armed, err := h.service.EnableAlerts(cardID, opts)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "Card not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("card_id", cardID).Msg("Failed to enable alerts")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"card_id":     cardID,
		"enabled":     true,
		"rules_armed": armed,
	})
}

// HandleDisableAlerts disarms a card's trigger rules.
// POST /api/alerts/disable/{card_id}
func (h *Handlers) HandleDisableAlerts(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "card_id")

	disarmed, err := h.service.DisableAlerts(cardID)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "Card not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("card_id", cardID).Msg("Failed to disable alerts")
		http.Error(w, "Failed to disable alerts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"card_id":        cardID,
		"enabled":        false,
		"rules_disarmed": disarmed,
	})
}
