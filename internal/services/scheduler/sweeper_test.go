package scheduler

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
)

// stubEngine records StartMonitoring calls.
type stubEngine struct {
	mu      sync.Mutex
	started []string
}

func (s *stubEngine) StartMonitoring(jobID, taskID, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, jobID)
}

func (s *stubEngine) StopMonitoring(jobID string) {}
func (s *stubEngine) ManualCheck(ctx context.Context, jobID, taskID, ownerID string) error {
	return nil
}
func (s *stubEngine) FinalizeWithAsset(ctx context.Context, jobID, ownerID, sourceURL string) error {
	return nil
}
func (s *stubEngine) ActiveJobs() []string { return nil }
func (s *stubEngine) Stop()                {}

func (s *stubEngine) startedJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

// stubJobs serves canned in-flight and stale job lists.
type stubJobs struct {
	interfaces.JobService
	inFlight []*models.VideoJob
	stale    []*models.VideoJob
}

func (s *stubJobs) GetInFlightJobs(ctx context.Context) ([]*models.VideoJob, error) {
	return s.inFlight, nil
}

func (s *stubJobs) GetStaleInFlightJobs(ctx context.Context, threshold time.Time) ([]*models.VideoJob, error) {
	return s.stale, nil
}

func TestRecoverInFlight(t *testing.T) {
	engine := &stubEngine{}
	jobs := &stubJobs{
		inFlight: []*models.VideoJob{
			models.NewVideoJob("job_1", "task-1", "owner-1"),
			models.NewVideoJob("job_2", "task-2", "owner-2"),
		},
	}

	sweeper := NewSweeper(jobs, engine, &common.SweeperConfig{}, arbor.NewLogger())
	require.NoError(t, sweeper.RecoverInFlight(context.Background()))

	assert.ElementsMatch(t, []string{"job_1", "job_2"}, engine.startedJobs())
}

func TestSweepRestartsStaleMonitors(t *testing.T) {
	engine := &stubEngine{}
	jobs := &stubJobs{
		stale: []*models.VideoJob{
			models.NewVideoJob("job_stale", "task-1", "owner-1"),
		},
	}

	sweeper := NewSweeper(jobs, engine, &common.SweeperConfig{
		Enabled:        true,
		Schedule:       "* * * * *",
		StaleThreshold: 3 * time.Minute,
	}, arbor.NewLogger())

	sweeper.sweep()
	assert.Equal(t, []string{"job_stale"}, engine.startedJobs())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	sweeper := NewSweeper(&stubJobs{}, &stubEngine{}, &common.SweeperConfig{
		Enabled:  true,
		Schedule: "not a schedule",
	}, arbor.NewLogger())

	assert.Error(t, sweeper.Start())
}

func TestStartDisabledIsNoOp(t *testing.T) {
	sweeper := NewSweeper(&stubJobs{}, &stubEngine{}, &common.SweeperConfig{
		Enabled: false,
	}, arbor.NewLogger())

	require.NoError(t, sweeper.Start())
}
