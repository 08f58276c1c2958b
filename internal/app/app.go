// Package app wires configuration, storage, services and handlers into one
// runnable application.
package app

import (
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/aryandika/campusgate/internal/common"
	"github.com/aryandika/campusgate/internal/credentials"
	"github.com/aryandika/campusgate/internal/crypto"
	"github.com/aryandika/campusgate/internal/handlers"
	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/services/auth"
	"github.com/aryandika/campusgate/internal/services/schedule"
	"github.com/aryandika/campusgate/internal/services/scheduler"
	badgerstorage "github.com/aryandika/campusgate/internal/storage/badger"
)

// App holds all application services and handlers
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Storage interfaces.StorageManager

	CredentialStore *credentials.Store
	SessionService  *auth.Service
	ScheduleService *schedule.Service
	Scheduler       *scheduler.Scheduler

	APIHandler        *handlers.APIHandler
	SessionHandler    *handlers.SessionHandler
	CredentialHandler *handlers.CredentialHandler
	ScheduleHandler   *handlers.ScheduleHandler
}

// New builds the application from configuration.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	if cfg.Session.EncryptionKey == "" {
		return nil, fmt.Errorf("no encryption key configured; set session.encryption_key or CAMPUSGATE_ENCRYPTION_KEY")
	}

	cipher, err := crypto.NewCipher(cfg.Session.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	storage, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	credStore := credentials.NewStore(storage.CredentialStorage(), cipher, logger)

	sessionService, err := auth.NewService(auth.ConfigFromApp(cfg), credStore, storage.SessionStorage(), logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize session service: %w", err)
	}

	scheduleURL := strings.TrimRight(cfg.Portal.TargetURL, "/") + cfg.Portal.SchedulePath
	scheduleService := schedule.NewService(scheduleURL, sessionService, storage.ScheduleStorage(), logger)

	scrapeScheduler := scheduler.New(cfg.Scraper.Schedule, storage.CredentialStorage(), scheduleService, logger)

	sessionHandler := handlers.NewSessionHandler(sessionService, logger)

	app := &App{
		Config:            cfg,
		Logger:            logger,
		Storage:           storage,
		CredentialStore:   credStore,
		SessionService:    sessionService,
		ScheduleService:   scheduleService,
		Scheduler:         scrapeScheduler,
		APIHandler:        handlers.NewAPIHandler(),
		SessionHandler:    sessionHandler,
		CredentialHandler: handlers.NewCredentialHandler(credStore, storage.CredentialStorage(), logger),
		ScheduleHandler:   handlers.NewScheduleHandler(scheduleService, sessionHandler, logger),
	}

	if cfg.Scraper.Enabled {
		if err := scrapeScheduler.Start(); err != nil {
			storage.Close()
			return nil, err
		}
	}

	return app, nil
}

// Close stops background jobs and releases storage.
func (a *App) Close() error {
	if a.Config.Scraper.Enabled && a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
