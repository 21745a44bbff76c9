package alerts

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// Handlers provides HTTP handlers for the alert trail.
type Handlers struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandlers creates alert HTTP handlers.
func NewHandlers(repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("module", "alerts_handlers").Logger(),
	}
}

// HandleListAlerts returns recent alerts, newest first.
// GET /api/alerts?limit=
func (h *Handlers) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := h.repo.ListRecent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list alerts")
		http.Error(w, "Failed to list alerts", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}
