// -----------------------------------------------------------------------
// Reconciliation Engine - per-job polling loops against the render provider
// -----------------------------------------------------------------------

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/models"
	"github.com/lukisan/renderwatch/internal/services/upstream"
	storage "github.com/lukisan/renderwatch/internal/storage/badger"
)

// ErrCheckInProgress is returned by ManualCheck when a reconciliation pass
// for the same job is already running.
var ErrCheckInProgress = errors.New("reconciliation already in progress for job")

const (
	msgTaskNotFound       = "task not found"
	msgAssetSaveFailed    = "failed to save asset"
	msgServiceUnavailable = "render service unavailable"
)

// monitor tracks one job's polling loop.
type monitor struct {
	taskID  string
	ownerID string
	cancel  context.CancelFunc
	passMu  *sync.Mutex // serializes reconciliation passes for this job id
}

// Engine implements ReconciliationEngine. One goroutine per monitored job
// polls the provider on a fixed interval; the registry guarantees at most
// one monitor per job id, and each monitor's pass mutex guarantees at most
// one reconciliation pass in flight per job.
type Engine struct {
	client   interfaces.TaskStatusClient
	migrator interfaces.AssetMigrator
	jobs     interfaces.JobService
	config   *common.ReconcilerConfig
	logger   arbor.ILogger

	mu        sync.Mutex
	monitors  map[string]*monitor
	passLocks map[string]*sync.Mutex

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates a reconciliation engine. Monitors are started explicitly
// via StartMonitoring; nothing runs until then.
func NewEngine(client interfaces.TaskStatusClient, migrator interfaces.AssetMigrator, jobs interfaces.JobService, config *common.ReconcilerConfig, logger arbor.ILogger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		client:    client,
		migrator:  migrator,
		jobs:      jobs,
		config:    config,
		logger:    logger,
		monitors:  make(map[string]*monitor),
		passLocks: make(map[string]*sync.Mutex),
		rootCtx:   ctx,
		cancel:    cancel,
	}
}

// StartMonitoring registers the job and launches its polling loop. Idempotent:
// a job that is already monitored keeps its existing loop untouched.
func (e *Engine) StartMonitoring(jobID, taskID, ownerID string) {
	e.mu.Lock()
	if _, exists := e.monitors[jobID]; exists {
		e.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(e.rootCtx)
	m := &monitor{
		taskID:  taskID,
		ownerID: ownerID,
		cancel:  cancel,
		passMu:  e.passLockLocked(jobID),
	}
	e.monitors[jobID] = m
	e.mu.Unlock()

	e.logger.Info().
		Str("job_id", jobID).
		Str("task_id", taskID).
		Msg("Started monitoring job")

	e.wg.Add(1)
	common.SafeGo(e.logger, fmt.Sprintf("monitor-%s", jobID), func() {
		defer e.wg.Done()
		e.monitorLoop(ctx, jobID, m)
	})
}

// StopMonitoring cancels the job's polling loop. Idempotent; does not wait
// for the loop to exit so it is safe to call from within a pass.
func (e *Engine) StopMonitoring(jobID string) {
	e.mu.Lock()
	m, exists := e.monitors[jobID]
	if exists {
		delete(e.monitors, jobID)
	}
	e.mu.Unlock()

	if exists {
		m.cancel()
		e.logger.Info().Str("job_id", jobID).Msg("Stopped monitoring job")
	}
}

// ManualCheck runs exactly one reconciliation pass outside the periodic loop.
// Contention with an in-flight pass for the same job returns ErrCheckInProgress
// instead of queueing.
func (e *Engine) ManualCheck(ctx context.Context, jobID, taskID, ownerID string) error {
	e.mu.Lock()
	passMu := e.passLockLocked(jobID)
	e.mu.Unlock()

	if !passMu.TryLock() {
		return ErrCheckInProgress
	}

	terminal, err := e.reconcilePass(ctx, jobID, taskID, ownerID)
	passMu.Unlock()

	if terminal {
		e.StopMonitoring(jobID)
	}
	e.releasePassLock(jobID)
	return err
}

// FinalizeWithAsset migrates sourceURL into durable storage and writes the
// terminal completed state. Shared entry point for the completion webhook;
// serialized against any in-flight pass for the job.
func (e *Engine) FinalizeWithAsset(ctx context.Context, jobID, ownerID, sourceURL string) error {
	e.mu.Lock()
	passMu := e.passLockLocked(jobID)
	e.mu.Unlock()

	passMu.Lock()
	defer passMu.Unlock()

	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusCompleted {
		return nil
	}

	err = e.finalize(ctx, jobID, ownerID, sourceURL)
	e.StopMonitoring(jobID)
	return err
}

// ActiveJobs returns the ids of all currently monitored jobs.
func (e *Engine) ActiveJobs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.monitors))
	for id := range e.monitors {
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels all monitors and waits for their loops to exit.
func (e *Engine) Stop() {
	e.cancel()

	e.mu.Lock()
	e.monitors = make(map[string]*monitor)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info().Msg("Reconciliation engine stopped")
}

// passLockLocked returns the pass mutex for a job id, creating it on demand.
// Caller holds e.mu.
func (e *Engine) passLockLocked(jobID string) *sync.Mutex {
	if mu, ok := e.passLocks[jobID]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	e.passLocks[jobID] = mu
	return mu
}

func (e *Engine) releasePassLock(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, stillMonitored := e.monitors[jobID]; !stillMonitored {
		delete(e.passLocks, jobID)
	}
}

// monitorLoop runs one pass immediately, then on every poll interval until
// the job reaches a terminal state, the transient failure bound is hit, or
// the monitor is cancelled.
func (e *Engine) monitorLoop(ctx context.Context, jobID string, m *monitor) {
	defer func() {
		e.StopMonitoring(jobID)
		e.releasePassLock(jobID)
	}()

	interval := e.config.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	maxFailures := e.config.MaxTransientFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		m.passMu.Lock()
		terminal, err := e.reconcilePass(ctx, jobID, m.taskID, m.ownerID)
		m.passMu.Unlock()

		if terminal {
			return
		}

		if err != nil {
			failures++
			e.logger.Warn().
				Err(err).
				Str("job_id", jobID).
				Int("consecutive_failures", failures).
				Msg("Reconciliation pass failed")

			if failures >= maxFailures {
				// A failure caused by shutdown is not the provider's fault
				if ctx.Err() == nil {
					e.markFailed(ctx, jobID, msgServiceUnavailable)
				}
				return
			}
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// reconcilePass fetches the upstream status, normalizes it and applies the
// resulting transition. Returns terminal=true once the job needs no further
// monitoring; a non-nil error marks a transient failure for the caller to
// count.
func (e *Engine) reconcilePass(ctx context.Context, jobID, taskID, ownerID string) (bool, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			// Job deleted out from under the monitor; nothing left to do
			return true, nil
		}
		return false, err
	}
	if job.Status.IsTerminal() {
		return true, nil
	}

	payload, err := e.client.GetStatus(ctx, taskID)
	if err != nil {
		if errors.Is(err, upstream.ErrTaskNotFound) {
			// The provider will never report this task again
			e.markFailed(ctx, jobID, msgTaskNotFound)
			return true, nil
		}
		if errors.Is(err, context.Canceled) {
			return true, nil
		}
		return false, err
	}

	normalized := upstream.Normalize(payload)

	switch {
	case normalized.Status == models.JobStatusCompleted && normalized.AssetURL != "":
		// Migration failure is terminal: the provider URL expires, retrying
		// later against a dead link only delays the inevitable failed state
		if err := e.finalize(ctx, jobID, ownerID, normalized.AssetURL); err != nil {
			e.logger.Error().
				Err(err).
				Str("job_id", jobID).
				Msg("Asset migration failed")
		}
		return true, nil

	case normalized.Status == models.JobStatusFailed:
		e.markFailedWith(ctx, jobID, normalized.Error, normalized.Progress)
		return true, nil

	default:
		return e.applyProgress(ctx, job, normalized)
	}
}

// finalize migrates the asset and writes the terminal completed record. On
// migration failure the job is marked failed instead.
func (e *Engine) finalize(ctx context.Context, jobID, ownerID, sourceURL string) error {
	result, err := e.migrator.Migrate(ctx, sourceURL, ownerID, jobID)
	if err != nil {
		e.markFailed(ctx, jobID, msgAssetSaveFailed)
		return err
	}

	update := &models.JobUpdate{
		Status:      models.StatusPtr(models.JobStatusCompleted),
		Progress:    models.IntPtr(100),
		AssetURL:    models.StringPtr(result.PublicURL),
		StoragePath: models.StringPtr(result.StoragePath),
	}
	if _, err := e.jobs.UpdateJob(ctx, jobID, update); err != nil {
		return fmt.Errorf("failed to persist completed state: %w", err)
	}

	e.logger.Info().
		Str("job_id", jobID).
		Str("asset_url", result.PublicURL).
		Msg("Job completed with migrated asset")

	return nil
}

// applyProgress writes a non-terminal status/progress update, keeping
// progress monotonic and skipping no-op writes.
func (e *Engine) applyProgress(ctx context.Context, job *models.VideoJob, normalized models.NormalizedStatus) (bool, error) {
	update := &models.JobUpdate{}
	if normalized.Status != job.Status {
		update.Status = models.StatusPtr(normalized.Status)
	}
	if normalized.Progress > job.Progress {
		update.Progress = models.IntPtr(normalized.Progress)
	}
	if normalized.ThumbnailURL != "" && (job.ThumbnailURL == nil || *job.ThumbnailURL != normalized.ThumbnailURL) {
		update.ThumbnailURL = models.StringPtr(normalized.ThumbnailURL)
	}

	if !update.HasChanges() {
		return false, nil
	}

	if _, err := e.jobs.UpdateJob(ctx, job.ID, update); err != nil {
		return false, fmt.Errorf("failed to persist progress: %w", err)
	}
	return false, nil
}

func (e *Engine) markFailed(ctx context.Context, jobID, message string) {
	e.markFailedWith(ctx, jobID, message, 0)
}

func (e *Engine) markFailedWith(ctx context.Context, jobID, message string, progress int) {
	update := &models.JobUpdate{
		Status:       models.StatusPtr(models.JobStatusFailed),
		Progress:     models.IntPtr(progress),
		ErrorMessage: models.StringPtr(message),
	}
	if _, err := e.jobs.UpdateJob(ctx, jobID, update); err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			return
		}
		e.logger.Error().
			Err(err).
			Str("job_id", jobID).
			Msg("Failed to persist failed state")
	}
}
