package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/models"
)

// StatusHandler reports service state: active monitors and job counts.
type StatusHandler struct {
	jobs   interfaces.JobService
	engine interfaces.ReconciliationEngine
	logger arbor.ILogger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(jobs interfaces.JobService, engine interfaces.ReconciliationEngine, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		jobs:   jobs,
		engine: engine,
		logger: logger,
	}
}

// GetStatusHandler returns monitor and job counts. GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	counts := make(map[string]int)
	for _, status := range []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusProcessing,
		models.JobStatusRunning,
		models.JobStatusCompleted,
		models.JobStatusFailed,
	} {
		count, err := h.jobs.CountJobsByStatus(r.Context(), status)
		if err != nil {
			h.logger.Warn().Err(err).Str("job_status", string(status)).Msg("Failed to count jobs")
			continue
		}
		counts[string(status)] = count
	}

	active := h.engine.ActiveJobs()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"active_monitors": len(active),
		"monitored_jobs":  active,
		"job_counts":      counts,
	})
}

// HealthHandler returns a liveness response. GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": common.GetVersion(),
	})
}

// VersionHandler returns build information. GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
	})
}
