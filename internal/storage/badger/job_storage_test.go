package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/models"
)

func newTestStorage(t *testing.T) interfaces.JobStorage {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{
		Path: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewJobStorage(db, logger)
}

func TestJobStorage_SaveAndGet(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	job := models.NewVideoJob("job_1", "task-1", "owner-1")
	require.NoError(t, storage.SaveJob(ctx, job))

	got, err := storage.GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, "job_1", got.ID)
	assert.Equal(t, "task-1", got.ExternalTaskID)
	assert.Equal(t, models.JobStatusPending, got.Status)

	_, err = storage.GetJob(ctx, "missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestJobStorage_GetByExternalTaskID(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveJob(ctx, models.NewVideoJob("job_1", "task-1", "owner-1")))
	require.NoError(t, storage.SaveJob(ctx, models.NewVideoJob("job_2", "task-2", "owner-1")))

	got, err := storage.GetJobByExternalTaskID(ctx, "task-2")
	require.NoError(t, err)
	assert.Equal(t, "job_2", got.ID)

	_, err = storage.GetJobByExternalTaskID(ctx, "task-99")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestJobStorage_UpdatePartialFields(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	job := models.NewVideoJob("job_1", "task-1", "owner-1")
	require.NoError(t, storage.SaveJob(ctx, job))

	updated, err := storage.UpdateJob(ctx, "job_1", &models.JobUpdate{
		Status:   models.StatusPtr(models.JobStatusProcessing),
		Progress: models.IntPtr(40),
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, updated.Status)
	assert.Equal(t, 40, updated.Progress)
	assert.Nil(t, updated.CompletedAt)
	assert.Nil(t, updated.AssetURL, "untouched fields stay untouched")

	// Progress-only update leaves status alone
	updated, err = storage.UpdateJob(ctx, "job_1", &models.JobUpdate{
		Progress: models.IntPtr(80),
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, updated.Status)
	assert.Equal(t, 80, updated.Progress)
}

func TestJobStorage_TerminalWriteSetsCompletedAt(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveJob(ctx, models.NewVideoJob("job_1", "task-1", "owner-1")))

	updated, err := storage.UpdateJob(ctx, "job_1", &models.JobUpdate{
		Status:   models.StatusPtr(models.JobStatusCompleted),
		Progress: models.IntPtr(100),
		AssetURL: models.StringPtr("https://assets.example.com/videos/owner-1/job_1_x.mp4"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.WithinDuration(t, time.Now(), *updated.CompletedAt, 5*time.Second)
}

func TestJobStorage_DeleteIsIdempotent(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveJob(ctx, models.NewVideoJob("job_1", "task-1", "owner-1")))
	require.NoError(t, storage.DeleteJob(ctx, "job_1"))
	require.NoError(t, storage.DeleteJob(ctx, "job_1"), "deleting a missing job is not an error")

	_, err := storage.GetJob(ctx, "job_1")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestJobStorage_ListJobsByOwnerNewestFirst(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for i, id := range []string{"job_a", "job_b", "job_c"} {
		job := models.NewVideoJob(id, "task-"+id, "owner-1")
		job.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, storage.SaveJob(ctx, job))
	}
	require.NoError(t, storage.SaveJob(ctx, models.NewVideoJob("job_other", "task-x", "owner-2")))

	jobs, err := storage.ListJobsByOwner(ctx, "owner-1", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "job_c", jobs[0].ID)
	assert.Equal(t, "job_a", jobs[2].ID)

	limited, err := storage.ListJobsByOwner(ctx, "owner-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestJobStorage_InFlightQueries(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	pending := models.NewVideoJob("job_pending", "task-1", "owner-1")
	require.NoError(t, storage.SaveJob(ctx, pending))

	processing := models.NewVideoJob("job_processing", "task-2", "owner-1")
	processing.Status = models.JobStatusProcessing
	require.NoError(t, storage.SaveJob(ctx, processing))

	done := models.NewVideoJob("job_done", "task-3", "owner-1")
	done.Status = models.JobStatusCompleted
	require.NoError(t, storage.SaveJob(ctx, done))

	inFlight, err := storage.GetInFlightJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, inFlight, 2)

	// Stale query: only records untouched since the threshold
	stale, err := storage.GetStaleInFlightJobs(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale, "fresh records are not stale")

	stale, err = storage.GetStaleInFlightJobs(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stale, 2, "terminal jobs are never stale")
}

func TestJobStorage_CountJobsByStatus(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveJob(ctx, models.NewVideoJob("job_1", "task-1", "owner-1")))
	require.NoError(t, storage.SaveJob(ctx, models.NewVideoJob("job_2", "task-2", "owner-1")))

	count, err := storage.CountJobsByStatus(ctx, models.JobStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = storage.CountJobsByStatus(ctx, models.JobStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestJobStorage_RejectsInvalidJob(t *testing.T) {
	storage := newTestStorage(t)

	err := storage.SaveJob(context.Background(), &models.VideoJob{ID: "job_1"})
	assert.Error(t, err, "missing owner must be rejected")
}
