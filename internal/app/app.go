// -----------------------------------------------------------------------
// App - dependency wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/handlers"
	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/services/assets"
	"github.com/lukisan/renderwatch/internal/services/events"
	"github.com/lukisan/renderwatch/internal/services/jobs"
	"github.com/lukisan/renderwatch/internal/services/objectstore"
	"github.com/lukisan/renderwatch/internal/services/reconciler"
	"github.com/lukisan/renderwatch/internal/services/scheduler"
	"github.com/lukisan/renderwatch/internal/services/upstream"
	"github.com/lukisan/renderwatch/internal/storage/badger"
)

// App holds all wired services and handlers.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService
	JobService     interfaces.JobService
	ObjectStore    interfaces.ObjectStorage
	Migrator       interfaces.AssetMigrator
	UpstreamClient interfaces.TaskStatusClient
	Engine         interfaces.ReconciliationEngine
	Sweeper        *scheduler.Sweeper

	JobHandler     *handlers.JobHandler
	WebhookHandler *handlers.WebhookHandler
	StatusHandler  *handlers.StatusHandler
	WSHandler      *handlers.WebSocketHandler
}

// New wires the application from configuration. Nothing polls or listens
// until Start is called.
func New(ctx context.Context, config *common.Config) (*App, error) {
	logger := common.GetLogger()

	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	objectStore, err := objectstore.New(ctx, &config.Storage.Object, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	eventService := events.NewService(logger)
	jobService := jobs.NewService(storageManager.JobStorage(), storageManager.HistoryStorage(), eventService, logger)
	migrator := assets.NewMigrator(objectStore, &config.Upstream, logger)
	upstreamClient := upstream.NewClient(&config.Upstream, logger)
	engine := reconciler.NewEngine(upstreamClient, migrator, jobService, &config.Reconciler, logger)
	sweeper := scheduler.NewSweeper(jobService, engine, &config.Sweeper, logger)

	a := &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		EventService:   eventService,
		JobService:     jobService,
		ObjectStore:    objectStore,
		Migrator:       migrator,
		UpstreamClient: upstreamClient,
		Engine:         engine,
		Sweeper:        sweeper,
	}

	a.JobHandler = handlers.NewJobHandler(jobService, engine, migrator, logger)
	a.WebhookHandler = handlers.NewWebhookHandler(jobService, engine, logger)
	a.StatusHandler = handlers.NewStatusHandler(jobService, engine, logger)
	a.WSHandler = handlers.NewWebSocketHandler(eventService, logger)

	logger.Info().Msg("Application wired")

	return a, nil
}

// Start recovers monitors for persisted in-flight jobs and launches the
// stale-job sweeper.
func (a *App) Start(ctx context.Context) error {
	if err := a.Sweeper.RecoverInFlight(ctx); err != nil {
		return err
	}
	return a.Sweeper.Start()
}

// AssetDir returns the local directory to serve under /assets/, or empty
// when assets live in an external object store.
func (a *App) AssetDir() string {
	if a.Config.Storage.Object.Type == "filesystem" {
		return a.Config.Storage.Object.Directory
	}
	return ""
}

// Close shuts everything down in dependency order.
func (a *App) Close() {
	a.Sweeper.Stop()
	a.Engine.Stop()
	a.WSHandler.Close()

	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Event service close failed")
	}
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage close failed")
	}

	a.Logger.Info().Msg("Application stopped")
}
