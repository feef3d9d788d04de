// -----------------------------------------------------------------------
// Video Job - Persisted render job record
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// JobStatus represents the persisted state of a video render job.
// The persisted set is closed: in-flight states are pending/processing/running,
// terminal states are completed/failed. Transitions only move in-flight -> terminal.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRunning    JobStatus = "running"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal returns true for states that receive no further automatic transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsInFlight returns true for states the reconciler still monitors.
func (s JobStatus) IsInFlight() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusRunning
}

// VideoJob is the persisted record tracking one video render request.
//
// Invariants maintained by the reconciliation engine:
//   - AssetURL is non-nil iff Status == completed and migration succeeded.
//   - StoragePath is set iff AssetURL points at a migrated object, never at
//     a transient provider URL.
//   - ExternalTaskID is immutable once set.
type VideoJob struct {
	ID             string     `json:"id" badgerhold:"key"`
	ExternalTaskID string     `json:"external_task_id"` // Render provider's task id, lookup key for polling
	OwnerID        string     `json:"owner_id" badgerhold:"index"`
	Status         JobStatus  `json:"status" badgerhold:"index"`
	Progress       int        `json:"progress"` // Percentage in [0,100]
	AssetURL       *string    `json:"asset_url,omitempty"`
	ThumbnailURL   *string    `json:"thumbnail_url,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	StoragePath    *string    `json:"storage_path,omitempty"` // Durable object key backing AssetURL
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// NewVideoJob creates a pending job for a submitted render task.
func NewVideoJob(id, externalTaskID, ownerID string) *VideoJob {
	now := time.Now()
	return &VideoJob{
		ID:             id,
		ExternalTaskID: externalTaskID,
		OwnerID:        ownerID,
		Status:         JobStatusPending,
		Progress:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate validates the job record
func (j *VideoJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.OwnerID == "" {
		return fmt.Errorf("owner ID is required")
	}
	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("progress must be in [0,100], got %d", j.Progress)
	}
	return nil
}

// JobUpdate carries a partial update to a VideoJob. Nil fields are left
// untouched so reconciliation writes only the fields that changed.
type JobUpdate struct {
	Status       *JobStatus
	Progress     *int
	AssetURL     *string
	ThumbnailURL *string
	ErrorMessage *string
	StoragePath  *string
}

// HasChanges reports whether the update would modify any field.
func (u *JobUpdate) HasChanges() bool {
	return u.Status != nil || u.Progress != nil || u.AssetURL != nil ||
		u.ThumbnailURL != nil || u.ErrorMessage != nil || u.StoragePath != nil
}

// StatusPtr is a convenience helper for building partial updates.
func StatusPtr(s JobStatus) *JobStatus { return &s }

// IntPtr is a convenience helper for building partial updates.
func IntPtr(i int) *int { return &i }

// StringPtr is a convenience helper for building partial updates.
func StringPtr(s string) *string { return &s }
