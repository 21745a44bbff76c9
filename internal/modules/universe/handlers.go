package universe

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers provides HTTP handlers for universe management.
type Handlers struct {
	repo    *Repository
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates universe HTTP handlers.
func NewHandlers(repo *Repository, service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:    repo,
		service: service,
		log:     log.With().Str("module", "universe_handlers").Logger(),
	}
}

// HandleListInstruments returns the full catalogue.
// GET /api/universe/instruments
func (h *Handlers) HandleListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.repo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list instruments")
		http.Error(w, "Failed to list instruments", http.StatusInternalServerError)
		return
	}
	if instruments == nil {
		instruments = []Instrument{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(instruments)
}

// HandleGetInstrument returns one instrument by symbol.
// GET /api/universe/instruments/{symbol}
func (h *Handlers) HandleGetInstrument(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	inst, err := h.repo.GetBySymbol(symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch instrument")
		http.Error(w, "Failed to fetch instrument", http.StatusInternalServerError)
		return
	}
	if inst == nil {
		http.Error(w, "Instrument not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(inst)
}

// HandleUpsertInstrument creates or updates an instrument.
// POST /api/universe/instruments
func (h *Handlers) HandleUpsertInstrument(w http.ResponseWriter, r *http.Request) {
	var inst Instrument
	if err := json.NewDecoder(r.Body).Decode(&inst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.repo.Upsert(inst); err != nil {
		h.log.Error().Err(err).Str("symbol", inst.Symbol).Msg("Failed to upsert instrument")
		http.Error(w, "Failed to save instrument", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "symbol": inst.Symbol})
}

// HandleRebuildSnapshot rebuilds the universe snapshot and returns its version.
// POST /api/universe/rebuild
func (h *Handlers) HandleRebuildSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Rebuild(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to rebuild snapshot")
		http.Error(w, "Failed to rebuild snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"version":     snap.Version,
		"built_at":    snap.BuiltAt,
		"instruments": snap.Size(),
	})
}

// HandleSnapshotStatus reports the active snapshot version.
// GET /api/universe/snapshot
func (h *Handlers) HandleSnapshotStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Current()
	if err != nil {
		http.Error(w, "No universe snapshot available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"version":     snap.Version,
		"built_at":    snap.BuiltAt,
		"instruments": snap.Size(),
	})
}
