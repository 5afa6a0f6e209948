// -----------------------------------------------------------------------
// Last Modified: Monday, 19th October 2026 9:12:40 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/handlers"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/services/browser"
	"github.com/ternarybob/tokenscope/internal/services/capture"
	"github.com/ternarybob/tokenscope/internal/services/config"
	"github.com/ternarybob/tokenscope/internal/services/events"
	"github.com/ternarybob/tokenscope/internal/services/identity"
	"github.com/ternarybob/tokenscope/internal/services/scheduler"
	"github.com/ternarybob/tokenscope/internal/services/systemlogs"
	"github.com/ternarybob/tokenscope/internal/services/usage"
	"github.com/ternarybob/tokenscope/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService *scheduler.Service

	// Capture pipeline
	ConfigService     *config.Service
	CredentialService *identity.Service
	UsageService      *usage.Service
	CaptureService    *capture.Service

	// Browser feed (nil when disabled)
	BrowserService *browser.Service

	// Log file viewer
	SystemLogsService *systemlogs.Service

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	WSHandler         *handlers.WebSocketHandler
	CredentialHandler *handlers.CredentialHandler
	UsageHandler      *handlers.UsageHandler
	ConfigHandler     *handlers.ConfigHandler
	RequestHandler    *handlers.RequestHandler
	CommandHandler    *handlers.CommandHandler
	SchedulerHandler  *handlers.SchedulerHandler
	SystemLogsHandler *handlers.SystemLogsHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// EventService must exist before any publisher or subscriber
	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to subscribe logger to events")
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// The browser starts last so the first requests find every subscriber in place
	if app.BrowserService != nil {
		if err := app.BrowserService.Start(); err != nil {
			// Ingestion over HTTP still works without the browser
			app.Logger.Warn().Err(err).Msg("Failed to start browser, request capture limited to /api/requests")
		}
	}

	logger.Info().
		Bool("browser_enabled", cfg.Browser.Enabled).
		Bool("scheduler_running", app.SchedulerService.IsRunning()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Bool("in_memory", a.Config.Storage.Badger.InMemory).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order:
// capture config -> rule files -> identity/usage -> capture -> browser -> scheduler -> logs
func (a *App) initServices() error {
	ctx := context.Background()
	var err error

	// 1. Capture config, seeded from the TOML file on first run
	a.ConfigService, err = config.NewService(
		a.StorageManager.CaptureConfigStorage(),
		a.EventService,
		a.Config.Capture.CaptureConfig(),
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create config service: %w", err)
	}
	if _, err := a.ConfigService.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize capture config: %w", err)
	}

	// 2. Rule files are upserted on top of the persisted config
	if err := a.StorageManager.LoadRulesFromFiles(ctx, a.Config.Rules.Dir); err != nil {
		// Log warning but don't fail startup
		a.Logger.Warn().Err(err).Str("dir", a.Config.Rules.Dir).Msg("Failed to load rules from files")
	}
	a.ConfigService.InvalidateCache()

	captureConfig, err := a.ConfigService.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to read capture config: %w", err)
	}

	// 3. Identity and usage stores
	a.CredentialService = identity.NewService(a.StorageManager.CredentialStorage(), a.Logger)
	a.UsageService = usage.NewService(a.StorageManager.UsageStorage(), a.Logger)

	// 4. Capture pipeline
	a.CaptureService, err = capture.NewService(
		captureConfig,
		a.CredentialService,
		a.UsageService,
		a.EventService,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create capture service: %w", err)
	}

	// 5. Browser feed
	if a.Config.Browser.Enabled {
		a.BrowserService = browser.NewService(a.Config.Browser, a.CaptureService, a.Logger)
		a.CaptureService.SetTabResolver(a.BrowserService.Tabs())
	} else {
		a.Logger.Info().Msg("Browser disabled, accepting request records over HTTP only")
	}

	// 6. Maintenance scheduler
	a.SchedulerService = scheduler.NewService(a.Logger)
	if err := scheduler.RegisterMaintenanceJobs(a.SchedulerService, a.StorageManager, a.Config.Maintenance, a.Logger); err != nil {
		return fmt.Errorf("failed to register maintenance jobs: %w", err)
	}
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// 7. Log viewer over the arbor file writer output
	logsDir := "./logs"
	if logFile := common.GetLogFilePath(a.Logger); logFile != "" {
		logsDir = filepath.Dir(logFile)
	}
	a.SystemLogsService = systemlogs.NewService(logsDir, a.Logger)

	a.Logger.Debug().
		Int("custom_rules", len(captureConfig.CustomRules)).
		Bool("capture_enabled", captureConfig.Enabled).
		Msg("Services initialized")

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
	a.CredentialHandler = handlers.NewCredentialHandler(a.CredentialService, a.Logger)
	a.UsageHandler = handlers.NewUsageHandler(a.UsageService, a.Logger)
	a.ConfigHandler = handlers.NewConfigHandler(a.Logger, a.Config, a.ConfigService)
	a.RequestHandler = handlers.NewRequestHandler(a.CaptureService, a.Logger)
	a.CommandHandler = handlers.NewCommandHandler(
		a.CredentialService,
		a.UsageService,
		a.ConfigService,
		a.Logger,
	)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
	a.SystemLogsHandler = handlers.NewSystemLogsHandler(a.SystemLogsService, a.Logger)

	a.Logger.Debug().
		Strs("operations", a.CommandHandler.Operations()).
		Msg("Handlers initialized")

	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop the request feed first so nothing publishes into closed services
	if a.BrowserService != nil {
		if err := a.BrowserService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close browser service")
		}
	}

	// Stop scheduler service
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Disconnect WebSocket clients
	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
