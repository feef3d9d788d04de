package interfaces

import (
	"context"

	"github.com/lukisan/renderwatch/internal/models"
)

// ReconciliationEngine owns the per-job monitoring lifecycle: it polls the
// upstream task API, normalizes statuses, migrates finished assets and
// persists job state. At most one reconciliation pass is in flight per job
// id at any time within the process.
type ReconciliationEngine interface {
	// StartMonitoring registers the job and launches its polling loop.
	// Idempotent: starting an already-monitored job is a no-op. Returns
	// immediately; the first pass runs right away in the background.
	StartMonitoring(jobID, taskID, ownerID string)

	// StopMonitoring cancels the job's polling loop. Idempotent.
	StopMonitoring(jobID string)

	// ManualCheck performs exactly one reconciliation pass outside the
	// periodic loop, serialized against any in-flight pass for the same
	// job. Returns reconciler.ErrCheckInProgress on contention.
	ManualCheck(ctx context.Context, jobID, taskID, ownerID string) error

	// FinalizeWithAsset migrates sourceURL and writes the terminal state.
	// Entry point shared by the polling loop and the completion webhook.
	FinalizeWithAsset(ctx context.Context, jobID, ownerID, sourceURL string) error

	// ActiveJobs returns the ids of all currently monitored jobs
	ActiveJobs() []string

	// Stop cancels all monitors and waits for their loops to exit
	Stop()
}

// JobService is the mutation and read surface over job state used by the
// engine and HTTP handlers; writes publish change events for observers.
type JobService interface {
	JobStorage
	EventService() EventService

	// History returns a job's status transition trail, oldest first
	History(ctx context.Context, jobID string, limit int) ([]*models.StatusTransition, error)
}
