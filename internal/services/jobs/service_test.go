package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/models"
	"github.com/lukisan/renderwatch/internal/services/events"
	"github.com/lukisan/renderwatch/internal/storage/badger"
)

// eventRecorder collects published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *eventRecorder) handler(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) countByType(eventType interfaces.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (interfaces.JobService, *eventRecorder) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewService(logger)
	recorder := &eventRecorder{}
	for _, et := range []interfaces.EventType{
		interfaces.EventJobUpdated,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventJobDeleted,
	} {
		require.NoError(t, bus.Subscribe(et, recorder.handler))
	}

	history := badger.NewHistoryStorage(db, logger)
	return NewService(badger.NewJobStorage(db, logger), history, bus, logger), recorder
}

func waitForEvents(t *testing.T, recorder *eventRecorder, eventType interfaces.EventType, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return recorder.countByType(eventType) >= want
	}, 2*time.Second, 10*time.Millisecond, "expected %d %s events", want, eventType)
}

func TestService_SavePublishesUpdate(t *testing.T) {
	svc, recorder := newTestService(t)

	job := models.NewVideoJob("job_1", "task-1", "owner-1")
	require.NoError(t, svc.SaveJob(context.Background(), job))

	waitForEvents(t, recorder, interfaces.EventJobUpdated, 1)
}

func TestService_TerminalUpdatePublishesCompletion(t *testing.T) {
	svc, recorder := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveJob(ctx, models.NewVideoJob("job_1", "task-1", "owner-1")))

	_, err := svc.UpdateJob(ctx, "job_1", &models.JobUpdate{
		Status:   models.StatusPtr(models.JobStatusCompleted),
		Progress: models.IntPtr(100),
	})
	require.NoError(t, err)

	waitForEvents(t, recorder, interfaces.EventJobCompleted, 1)
	assert.Equal(t, 0, recorder.countByType(interfaces.EventJobFailed))
}

func TestService_FailedUpdatePublishesFailure(t *testing.T) {
	svc, recorder := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveJob(ctx, models.NewVideoJob("job_1", "task-1", "owner-1")))

	_, err := svc.UpdateJob(ctx, "job_1", &models.JobUpdate{
		Status:       models.StatusPtr(models.JobStatusFailed),
		ErrorMessage: models.StringPtr("render failed"),
	})
	require.NoError(t, err)

	waitForEvents(t, recorder, interfaces.EventJobFailed, 1)
}

func TestService_DeletePublishesDeletion(t *testing.T) {
	svc, recorder := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveJob(ctx, models.NewVideoJob("job_1", "task-1", "owner-1")))
	require.NoError(t, svc.DeleteJob(ctx, "job_1"))

	waitForEvents(t, recorder, interfaces.EventJobDeleted, 1)

	_, err := svc.GetJob(ctx, "job_1")
	assert.Error(t, err)
}

func TestService_WritesRecordTransitionHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveJob(ctx, models.NewVideoJob("job_1", "task-1", "owner-1")))

	_, err := svc.UpdateJob(ctx, "job_1", &models.JobUpdate{
		Status:   models.StatusPtr(models.JobStatusProcessing),
		Progress: models.IntPtr(40),
	})
	require.NoError(t, err)

	_, err = svc.UpdateJob(ctx, "job_1", &models.JobUpdate{
		Status:       models.StatusPtr(models.JobStatusFailed),
		ErrorMessage: models.StringPtr("render failed"),
	})
	require.NoError(t, err)

	history, err := svc.History(ctx, "job_1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3, "every write leaves an audit record")
	assert.Equal(t, models.JobStatusPending, history[0].Status)
	assert.Equal(t, models.JobStatusProcessing, history[1].Status)
	assert.Equal(t, 40, history[1].Progress)
	assert.Equal(t, models.JobStatusFailed, history[2].Status)
	assert.Equal(t, "render failed", history[2].Message)

	// Deleting the job removes its trail
	require.NoError(t, svc.DeleteJob(ctx, "job_1"))
	history, err = svc.History(ctx, "job_1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_ProgressUpdatePublishesOnlyUpdate(t *testing.T) {
	svc, recorder := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveJob(ctx, models.NewVideoJob("job_1", "task-1", "owner-1")))

	_, err := svc.UpdateJob(ctx, "job_1", &models.JobUpdate{Progress: models.IntPtr(30)})
	require.NoError(t, err)

	waitForEvents(t, recorder, interfaces.EventJobUpdated, 2)
	assert.Equal(t, 0, recorder.countByType(interfaces.EventJobCompleted))
	assert.Equal(t, 0, recorder.countByType(interfaces.EventJobFailed))
}
