package cli

import (
	"context"
	"fmt"

	"github.com/FairForge/dropsense/internal/adaptation"
	"github.com/FairForge/dropsense/internal/auth"
	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/database"
	"github.com/FairForge/dropsense/internal/events"
	"github.com/FairForge/dropsense/internal/insights"
	"github.com/FairForge/dropsense/internal/intelligence"
	"github.com/FairForge/dropsense/internal/logging"
	"github.com/FairForge/dropsense/internal/metrics"
	"github.com/FairForge/dropsense/internal/profile"
	"github.com/FairForge/dropsense/internal/queue"
	"go.uber.org/zap"
)

// App holds the wired services shared by every subcommand.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Policy   *config.Live
	DB       *database.Postgres
	Outbox   *queue.Outbox
	Events   *events.Gateway
	Profiles *profile.Service
	Analyzer *intelligence.Analyzer
	Tokens   *auth.TokenService
}

// NewApp wires the stores and services for cfg. Without a database host
// everything runs in memory.
func NewApp(cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewCollector(),
		Policy:  config.NewLive(cfg.Policy),
		Outbox: queue.NewOutbox(queue.Config{
			VisibilityTimeout: cfg.Worker.VisibilityTimeout,
		}),
		Tokens: auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	}

	var (
		eventStore   events.Store
		profileStore profile.Store
		locker       intelligence.Locker
	)
	if cfg.Database.Host == "" {
		logger.Info("no database configured, using in-memory stores")
		eventStore = events.NewMemoryStore()
		profileStore = profile.NewMemoryStore()
		locker = intelligence.NewKeyedLock()
	} else {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		app.DB = db
		eventStore = events.NewPostgresStore(db.DB())
		profileStore = profile.NewPostgresStore(db.DB())
		locker = intelligence.NewAdvisoryLock(db.DB())
		logger.Info("using postgres stores",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Name))
	}

	var remote insights.Advisor
	if cfg.Advisory.Endpoint != "" {
		remote = insights.NewRemoteAdvisor(cfg.Advisory)
	}

	app.Events = events.NewGateway(eventStore, app.Outbox, app.Policy, logger, app.Metrics)
	app.Profiles = profile.NewService(profileStore, logger)
	app.Analyzer = intelligence.NewAnalyzer(intelligence.Deps{
		Events:    app.Events,
		Trigger:   app.Outbox,
		Profiles:  app.Profiles,
		Engine:    adaptation.NewEngine(app.Policy, logger, app.Metrics),
		Generator: insights.NewGenerator(insights.NewResilientAdvisor(remote, app.Policy, logger, app.Metrics), logger, app.Metrics),
		Locker:    locker,
		Policy:    app.Policy,
		Logger:    logger,
		Metrics:   app.Metrics,
	})
	return app, nil
}

// Ready reports whether the backing store is reachable.
func (a *App) Ready(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Ping(ctx)
}

// Close releases the database pool and flushes the logger.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("close database", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
