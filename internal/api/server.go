package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FairForge/dropsense/internal/auth"
	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/docs"
	"github.com/FairForge/dropsense/internal/events"
	"github.com/FairForge/dropsense/internal/intelligence"
	"github.com/FairForge/dropsense/internal/metrics"
	"github.com/FairForge/dropsense/internal/profile"
	"github.com/FairForge/dropsense/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Deps are the services the HTTP API fronts.
type Deps struct {
	Events   *events.Gateway
	Analyzer *intelligence.Analyzer
	Profiles *profile.Service
	Trigger  events.Trigger
	Tokens   *auth.TokenService
	Ready    ReadyCheck
	Logger   *zap.Logger
	Metrics  *metrics.Collector
}

// Server is the dropsense HTTP API.
type Server struct {
	cfg        config.ServerConfig
	deps       Deps
	logger     *zap.Logger
	router     chi.Router
	limiter    *ratelimit.HeaderLimiter
	httpServer *http.Server
	startTime  time.Time
}

// NewServer builds the router and the underlying http.Server.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.Default().Server.MaxBodyBytes
	}
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger,
		router:    chi.NewRouter(),
		limiter:   ratelimit.NewHeaderLimiter(cfg.IngestRate, cfg.IngestBurst),
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.Int("port", s.cfg.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metricsHandler())
	r.Get("/openapi.json", docs.OpenAPIJSONHandler(Version))
	r.Get("/docs", docs.SwaggerUIHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.With(s.limiter.Middleware(userKey)).Post("/events", s.handleIngest)
		r.Get("/profile", s.handleProfile)
		r.Post("/assessment", s.handleAssessment)
		r.Get("/insights", s.handleListInsights)
		r.Post("/insights/read-all", s.handleMarkAllRead)
		r.Post("/insights/{id}/read", s.handleMarkRead)
		r.Post("/analysis", s.handleRequestAnalysis)
	})
}
