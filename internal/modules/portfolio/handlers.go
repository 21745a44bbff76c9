package portfolio

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
)

// Handlers provides HTTP handlers for the paper portfolio.
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates portfolio HTTP handlers.
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("module", "portfolio_handlers").Logger(),
	}
}

// HandleListPositions returns positions, optionally filtered by status.
// GET /api/portfolio/positions?status=
func (h *Handlers) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != StatusOpen && status != StatusClosed {
		http.Error(w, "status must be open or closed", http.StatusBadRequest)
		return
	}

	positions, err := h.service.List(r.Context(), status)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list positions")
		http.Error(w, "Failed to list positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []Position{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(positions)
}

type openPositionRequest struct {
	CardID  string  `json:"card_id"`
	Symbol  string  `json:"symbol"`
	Qty     float64 `json:"qty"`
	EntryPx float64 `json:"entry_px"`
}

// HandleOpenPosition opens a paper position by hand.
// POST /api/portfolio/positions
func (h *Handlers) HandleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CardID == "" || req.Symbol == "" {
		http.Error(w, "card_id and symbol are required", http.StatusBadRequest)
		return
	}

	day := time.Now().UTC().Format(domain.DateLayout)
	pos, err := h.service.OpenManual(req.CardID, req.Symbol, req.Qty, req.EntryPx, day)
	if errors.Is(err, domain.ErrDuplicatePosition) {
		http.Error(w, "An open position for this card and symbol already exists", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(pos)
}

type closePositionRequest struct {
	ExitPx float64 `json:"exit_px"`
}

// HandleClosePosition closes a position at the given exit price.
// POST /api/portfolio/positions/{id}/close
func (h *Handlers) HandleClosePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req closePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	day := time.Now().UTC().Format(domain.DateLayout)
	pos, err := h.service.ClosePosition(id, req.ExitPx, day)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "No open position with that id", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pos)
}

// HandleGetStats returns win rate and PnL aggregates.
// GET /api/portfolio/stats
func (h *Handlers) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute portfolio stats")
		http.Error(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
