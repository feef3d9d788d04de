// -----------------------------------------------------------------------
// Webhook Handler - render provider completion callbacks
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/interfaces"
	storage "github.com/lukisan/renderwatch/internal/storage/badger"
)

// RenderCompleteRequest is the body the provider posts when a render
// finishes ahead of the next poll.
type RenderCompleteRequest struct {
	TaskID   string `json:"task_id" validate:"required"`
	VideoURL string `json:"video_url" validate:"required,url"`
}

// WebhookHandler accepts completion callbacks from the render provider so
// finished jobs settle immediately instead of waiting for the next poll.
type WebhookHandler struct {
	jobs     interfaces.JobService
	engine   interfaces.ReconciliationEngine
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(jobs interfaces.JobService, engine interfaces.ReconciliationEngine, logger arbor.ILogger) *WebhookHandler {
	return &WebhookHandler{
		jobs:     jobs,
		engine:   engine,
		validate: validator.New(),
		logger:   logger,
	}
}

// RenderCompleteHandler finalizes the job tracking the reported task.
// POST /api/webhooks/render-complete
func (h *WebhookHandler) RenderCompleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req RenderCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "task_id and a valid video_url are required")
		return
	}

	job, err := h.jobs.GetJobByExternalTaskID(r.Context(), req.TaskID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			// Unknown task: acknowledge so the provider stops retrying
			h.logger.Warn().Str("task_id", req.TaskID).Msg("Webhook for unknown task")
			WriteSuccess(w, "No job tracks this task")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to look up job")
		return
	}

	if err := h.engine.FinalizeWithAsset(r.Context(), job.ID, job.OwnerID, req.VideoURL); err != nil {
		h.logger.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("task_id", req.TaskID).
			Msg("Webhook finalization failed")
		WriteError(w, http.StatusInternalServerError, "Failed to finalize job")
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("task_id", req.TaskID).
		Msg("Job finalized via webhook")

	WriteSuccess(w, "Job finalized")
}
