package interfaces

import (
	"context"
	"time"

	"github.com/lukisan/renderwatch/internal/models"
)

// JobStorage defines persistence operations for video render jobs.
// Updates are last-write-wins: only one reconciliation pass mutates a given
// job at a time within the process, and cross-process races are a documented
// limitation of the in-memory monitor registry.
type JobStorage interface {
	// SaveJob inserts or replaces a job record
	SaveJob(ctx context.Context, job *models.VideoJob) error

	// GetJob retrieves a job by ID
	GetJob(ctx context.Context, jobID string) (*models.VideoJob, error)

	// GetJobByExternalTaskID retrieves the job tracking a provider task id
	GetJobByExternalTaskID(ctx context.Context, taskID string) (*models.VideoJob, error)

	// UpdateJob applies a partial update and bumps UpdatedAt
	UpdateJob(ctx context.Context, jobID string, update *models.JobUpdate) (*models.VideoJob, error)

	// DeleteJob removes a job record; deleting a missing job is not an error
	DeleteJob(ctx context.Context, jobID string) error

	// ListJobsByOwner returns an owner's jobs, newest first
	ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.VideoJob, error)

	// GetInFlightJobs returns all jobs in a non-terminal status
	GetInFlightJobs(ctx context.Context) ([]*models.VideoJob, error)

	// GetStaleInFlightJobs returns in-flight jobs not updated since the threshold
	GetStaleInFlightJobs(ctx context.Context, threshold time.Time) ([]*models.VideoJob, error)

	// CountJobsByStatus returns the number of jobs in the given status
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)
}

// HistoryStorage records the append-only status transition trail per job.
type HistoryStorage interface {
	// AppendTransition appends one audit record
	AppendTransition(ctx context.Context, record *models.StatusTransition) error

	// ListTransitions returns a job's transitions, oldest first
	ListTransitions(ctx context.Context, jobID string, limit int) ([]*models.StatusTransition, error)

	// DeleteTransitions removes a job's trail when the job is deleted
	DeleteTransitions(ctx context.Context, jobID string) error
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	JobStorage() JobStorage
	HistoryStorage() HistoryStorage
	Close() error
}
