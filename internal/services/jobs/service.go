// -----------------------------------------------------------------------
// Job Service - job state mutations with change event publication
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/models"
)

// Service wraps job storage so every successful write publishes a change
// event. Observers (the websocket hub, anything else subscribed) see state
// transitions without polling the store.
type Service struct {
	storage interfaces.JobStorage
	history interfaces.HistoryStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewService creates a job service over the given storage and event bus.
func NewService(storage interfaces.JobStorage, history interfaces.HistoryStorage, events interfaces.EventService, logger arbor.ILogger) interfaces.JobService {
	return &Service{
		storage: storage,
		history: history,
		events:  events,
		logger:  logger,
	}
}

// EventService exposes the underlying event bus for subscribers.
func (s *Service) EventService() interfaces.EventService {
	return s.events
}

func (s *Service) SaveJob(ctx context.Context, job *models.VideoJob) error {
	if err := s.storage.SaveJob(ctx, job); err != nil {
		return err
	}
	s.recordTransition(ctx, job, "")
	s.publish(ctx, interfaces.EventJobUpdated, job)
	return nil
}

// UpdateJob applies a partial update and publishes the matching event:
// job_updated always, plus job_completed or job_failed on a terminal write.
func (s *Service) UpdateJob(ctx context.Context, jobID string, update *models.JobUpdate) (*models.VideoJob, error) {
	job, err := s.storage.UpdateJob(ctx, jobID, update)
	if err != nil {
		return nil, err
	}

	message := ""
	if update.ErrorMessage != nil {
		message = *update.ErrorMessage
	}
	s.recordTransition(ctx, job, message)

	s.publish(ctx, interfaces.EventJobUpdated, job)
	if update.Status != nil {
		switch *update.Status {
		case models.JobStatusCompleted:
			s.publish(ctx, interfaces.EventJobCompleted, job)
		case models.JobStatusFailed:
			s.publish(ctx, interfaces.EventJobFailed, job)
		}
	}

	return job, nil
}

func (s *Service) DeleteJob(ctx context.Context, jobID string) error {
	job, err := s.storage.GetJob(ctx, jobID)
	if err != nil {
		// Deleting a missing job is not an error; nothing to announce either
		return s.storage.DeleteJob(ctx, jobID)
	}

	if err := s.storage.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	if err := s.history.DeleteTransitions(ctx, jobID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to delete transition history")
	}
	s.publish(ctx, interfaces.EventJobDeleted, job)
	return nil
}

// History returns a job's status transition trail, oldest first.
func (s *Service) History(ctx context.Context, jobID string, limit int) ([]*models.StatusTransition, error) {
	return s.history.ListTransitions(ctx, jobID, limit)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*models.VideoJob, error) {
	return s.storage.GetJob(ctx, jobID)
}

func (s *Service) GetJobByExternalTaskID(ctx context.Context, taskID string) (*models.VideoJob, error) {
	return s.storage.GetJobByExternalTaskID(ctx, taskID)
}

func (s *Service) ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.VideoJob, error) {
	return s.storage.ListJobsByOwner(ctx, ownerID, limit)
}

func (s *Service) GetInFlightJobs(ctx context.Context) ([]*models.VideoJob, error) {
	return s.storage.GetInFlightJobs(ctx)
}

func (s *Service) GetStaleInFlightJobs(ctx context.Context, threshold time.Time) ([]*models.VideoJob, error) {
	return s.storage.GetStaleInFlightJobs(ctx, threshold)
}

func (s *Service) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	return s.storage.CountJobsByStatus(ctx, status)
}

// recordTransition appends to the audit trail. Best-effort: a history write
// failure never fails the state change it describes.
func (s *Service) recordTransition(ctx context.Context, job *models.VideoJob, message string) {
	record := &models.StatusTransition{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  message,
		At:       job.UpdatedAt,
	}
	if err := s.history.AppendTransition(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record status transition")
	}
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, job *models.VideoJob) {
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: job}); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", string(eventType)).
			Str("job_id", job.ID).
			Msg("Failed to publish job event")
	}
}
