package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/common"
	"github.com/ternarybob/munio/internal/connectors/github"
	"github.com/ternarybob/munio/internal/handlers"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/services/analyzer"
	"github.com/ternarybob/munio/internal/services/cache"
	"github.com/ternarybob/munio/internal/services/events"
	"github.com/ternarybob/munio/internal/services/secrets"
	"github.com/ternarybob/munio/internal/services/templates"
	badgerstore "github.com/ternarybob/munio/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// GitHub connector
	Connector interfaces.GitHubConnector

	// Services
	EventService    interfaces.EventService
	CacheService    interfaces.CacheService
	SecretService   interfaces.SecretService
	TemplateService interfaces.TemplateService
	AnalyzerService interfaces.AnalyzerService

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	TemplateHandler *handlers.TemplateHandler
	SecretHandler   *handlers.SecretHandler
	AnalysisHandler *handlers.AnalysisHandler
	GitHubHandler   *handlers.GitHubHandler
	WSHandler       *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("environment", cfg.Environment).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the storage layer (Badger)
func (a *App) initStorage() error {
	storageManager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	var err error

	a.EventService = events.NewService(a.Logger, a.Config.WebSocket.AllowedEvents)
	a.Logger.Debug().Msg("Event service initialized")

	a.CacheService = cache.NewService(a.Logger, a.Config.CacheTTL(), a.Config.Cache.SweepSchedule)
	if err := a.CacheService.Start(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to start cache sweep schedule - cache entries expire lazily")
	}
	a.Logger.Debug().Str("ttl", a.Config.Cache.TTL).Msg("Cache service initialized")

	a.SecretService, err = secrets.NewService(a.Logger, a.StorageManager.SecretStorage(), a.Config.Secrets.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize secret service: %w", err)
	}
	a.Logger.Debug().Msg("Secret service initialized")

	a.TemplateService = templates.NewService(a.Logger, a.StorageManager.TemplateStorage())

	// Seed built-in templates from disk. A missing seed directory is not fatal;
	// the catalog can be populated entirely through the API.
	seeded, err := a.TemplateService.SeedFromDir(context.Background(), a.Config.Templates.SeedDir)
	if err != nil {
		a.Logger.Warn().Err(err).Str("dir", a.Config.Templates.SeedDir).Msg("Failed to seed templates from files")
	} else {
		a.Logger.Debug().Int("templates", seeded).Msg("Template catalog seeded")
	}

	a.Connector, err = github.NewConnector(&a.Config.GitHub)
	if err != nil {
		return fmt.Errorf("failed to initialize GitHub connector: %w", err)
	}
	a.Logger.Debug().Msg("GitHub connector initialized")

	a.AnalyzerService = analyzer.NewService(
		a.Logger,
		a.Config,
		a.Connector,
		a.TemplateService,
		a.CacheService,
		a.EventService,
		a.StorageManager.RunStorage(),
	)
	a.Logger.Debug().
		Int("concurrency", a.Config.Analyzer.Concurrency).
		Msg("Analyzer service initialized")

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.TemplateHandler = handlers.NewTemplateHandler(a.TemplateService, a.Logger)
	a.SecretHandler = handlers.NewSecretHandler(a.SecretService, a.Logger)
	a.AnalysisHandler = handlers.NewAnalysisHandler(a.AnalyzerService, a.Logger)
	a.GitHubHandler = handlers.NewGitHubHandler(a.Connector, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
}

// Close closes all application resources
func (a *App) Close() error {
	if a.CacheService != nil {
		a.CacheService.Stop()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
