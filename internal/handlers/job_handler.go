// -----------------------------------------------------------------------
// Job Handler - video job submission and lifecycle endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/models"
	"github.com/lukisan/renderwatch/internal/services/reconciler"
	storage "github.com/lukisan/renderwatch/internal/storage/badger"
)

// SubmitJobRequest is the body for POST /api/jobs.
type SubmitJobRequest struct {
	ExternalTaskID string `json:"external_task_id" validate:"required"`
	OwnerID        string `json:"owner_id" validate:"required"`
}

// JobHandler exposes job submission, lookup, recheck and deletion.
type JobHandler struct {
	jobs     interfaces.JobService
	engine   interfaces.ReconciliationEngine
	migrator interfaces.AssetMigrator
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewJobHandler creates a job handler.
func NewJobHandler(jobs interfaces.JobService, engine interfaces.ReconciliationEngine, migrator interfaces.AssetMigrator, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:     jobs,
		engine:   engine,
		migrator: migrator,
		validate: validator.New(),
		logger:   logger,
	}
}

// SubmitJobHandler registers a render task for tracking and starts its
// monitor. POST /api/jobs
func (h *JobHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "external_task_id and owner_id are required")
		return
	}

	// A task already being tracked returns its existing job
	if existing, err := h.jobs.GetJobByExternalTaskID(r.Context(), req.ExternalTaskID); err == nil {
		h.engine.StartMonitoring(existing.ID, existing.ExternalTaskID, existing.OwnerID)
		WriteJSON(w, http.StatusOK, existing)
		return
	}

	job := models.NewVideoJob(common.NewJobID(), req.ExternalTaskID, req.OwnerID)
	if err := h.jobs.SaveJob(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save submitted job")
		WriteError(w, http.StatusInternalServerError, "Failed to save job")
		return
	}

	h.engine.StartMonitoring(job.ID, job.ExternalTaskID, job.OwnerID)

	h.logger.Info().
		Str("job_id", job.ID).
		Str("task_id", job.ExternalTaskID).
		Str("owner_id", job.OwnerID).
		Msg("Job submitted for tracking")

	WriteJSON(w, http.StatusCreated, job)
}

// ListJobsHandler returns an owner's jobs, newest first.
// GET /api/jobs?owner_id=...&limit=...
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		h.SubmitJobHandler(w, r)
		return
	}
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		WriteError(w, http.StatusBadRequest, "owner_id query parameter is required")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	jobList, err := h.jobs.ListJobsByOwner(r.Context(), ownerID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("owner_id", ownerID).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobList == nil {
		jobList = []*models.VideoJob{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobList,
		"count": len(jobList),
	})
}

// GetJobHandler returns a single job record. GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// RecheckJobHandler forces one reconciliation pass outside the periodic
// loop. POST /api/jobs/{id}/recheck
func (h *JobHandler) RecheckJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	if err := h.engine.ManualCheck(r.Context(), job.ID, job.ExternalTaskID, job.OwnerID); err != nil {
		if errors.Is(err, reconciler.ErrCheckInProgress) {
			WriteError(w, http.StatusConflict, "A check for this job is already in progress")
			return
		}
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Manual check failed")
		WriteError(w, http.StatusBadGateway, "Status check failed")
		return
	}

	// Return the post-check record so callers see the fresh state
	refreshed, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		WriteSuccess(w, "Check completed")
		return
	}
	WriteJSON(w, http.StatusOK, refreshed)
}

// JobHistoryHandler returns the job's status transition trail.
// GET /api/jobs/{id}/history
func (h *JobHandler) JobHistoryHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, err := h.jobs.GetJob(r.Context(), jobID); err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	history, err := h.jobs.History(r.Context(), jobID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job history")
		WriteError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	if history == nil {
		history = []*models.StatusTransition{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":      jobID,
		"transitions": history,
		"count":       len(history),
	})
}

// DeleteJobHandler stops monitoring, removes the migrated asset and deletes
// the record. DELETE /api/jobs/{id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	h.engine.StopMonitoring(jobID)

	// Asset removal is best-effort; the record goes away regardless
	if job.StoragePath != nil {
		if err := h.migrator.DeleteAsset(r.Context(), *job.StoragePath); err != nil {
			h.logger.Warn().
				Err(err).
				Str("job_id", jobID).
				Str("path", *job.StoragePath).
				Msg("Failed to delete migrated asset")
		}
	}

	if err := h.jobs.DeleteJob(r.Context(), jobID); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to delete job")
		WriteError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job deleted")
	WriteSuccess(w, "Job deleted")
}
