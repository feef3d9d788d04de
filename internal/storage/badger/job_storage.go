package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/models"
)

// ErrJobNotFound is returned when a job id has no persisted record.
var ErrJobNotFound = fmt.Errorf("job not found")

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.VideoJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.VideoJob, error) {
	var job models.VideoJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) GetJobByExternalTaskID(ctx context.Context, taskID string) (*models.VideoJob, error) {
	var jobs []models.VideoJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ExternalTaskID").Eq(taskID).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to look up job by task id: %w", err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: task %s", ErrJobNotFound, taskID)
	}
	return &jobs[0], nil
}

// UpdateJob applies the non-nil fields of update to the stored record.
// Read-modify-write: acceptable because writes to a given job are issued
// only by its single active reconciliation pass within this process.
func (s *JobStorage) UpdateJob(ctx context.Context, jobID string, update *models.JobUpdate) (*models.VideoJob, error) {
	var job models.VideoJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job for update: %w", err)
	}

	if update.Status != nil {
		job.Status = *update.Status
		if job.Status.IsTerminal() && job.CompletedAt == nil {
			now := time.Now()
			job.CompletedAt = &now
		}
	}
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.AssetURL != nil {
		job.AssetURL = update.AssetURL
	}
	if update.ThumbnailURL != nil {
		job.ThumbnailURL = update.ThumbnailURL
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = update.ErrorMessage
	}
	if update.StoragePath != nil {
		job.StoragePath = update.StoragePath
	}
	job.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(job.ID, &job); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.VideoJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *JobStorage) ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.VideoJob, error) {
	query := badgerhold.Where("OwnerID").Eq(ownerID).SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.VideoJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.VideoJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) GetInFlightJobs(ctx context.Context) ([]*models.VideoJob, error) {
	var jobs []models.VideoJob
	err := s.db.Store().Find(&jobs, badgerhold.Where("Status").In(
		models.JobStatusPending, models.JobStatusProcessing, models.JobStatusRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to get in-flight jobs: %w", err)
	}

	result := make([]*models.VideoJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) GetStaleInFlightJobs(ctx context.Context, threshold time.Time) ([]*models.VideoJob, error) {
	var jobs []models.VideoJob
	err := s.db.Store().Find(&jobs, badgerhold.Where("Status").In(
		models.JobStatusPending, models.JobStatusProcessing, models.JobStatusRunning).
		And("UpdatedAt").Lt(threshold))
	if err != nil {
		return nil, fmt.Errorf("failed to get stale jobs: %w", err)
	}

	result := make([]*models.VideoJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.VideoJob{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
