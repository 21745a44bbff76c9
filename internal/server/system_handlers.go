package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/playbook/internal/database"
	"github.com/aristath/playbook/internal/modules/universe"
)

// SystemHandlers handles system-wide monitoring endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	databases   []*database.DB
	universe    *universe.Service
}

// NewSystemHandlers creates a new system handlers instance.
func NewSystemHandlers(log zerolog.Logger, databases []*database.DB, universeSvc *universe.Service) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		databases:   databases,
		universe:    universeSvc,
	}
}

// SystemStatusResponse is the payload for GET /api/system/status.
type SystemStatusResponse struct {
	Status          string            `json:"status"`
	UptimeSeconds   int64             `json:"uptime_seconds"`
	CPUPercent      float64           `json:"cpu_percent"`
	RAMPercent      float64           `json:"ram_percent"`
	Databases       map[string]string `json:"databases"`
	SnapshotVersion string            `json:"snapshot_version,omitempty"`
	SnapshotSize    int               `json:"snapshot_size,omitempty"`
}

// HandleHealth is a lightweight liveness probe.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleSystemStatus returns comprehensive system status.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, ramPercent := h.getSystemStats()

	status := "healthy"
	dbStatus := make(map[string]string, len(h.databases))
	for _, db := range h.databases {
		if err := db.HealthCheck(r.Context()); err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			dbStatus[db.Name()] = "unhealthy"
			status = "degraded"
			continue
		}
		dbStatus[db.Name()] = "healthy"
	}

	response := SystemStatusResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Databases:     dbStatus,
	}

	if h.universe != nil {
		if snap, err := h.universe.Current(); err == nil {
			response.SnapshotVersion = snap.Version
			response.SnapshotSize = snap.Size()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// getSystemStats calculates CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	var cpuUsage, ramUsage float64

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU usage")
	} else if len(cpuPercent) > 0 {
		cpuUsage = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get RAM usage")
	} else {
		ramUsage = memStat.UsedPercent
	}

	return cpuUsage, ramUsage
}
