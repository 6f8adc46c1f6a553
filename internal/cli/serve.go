package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/FairForge/dropsense/internal/api"
	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/intelligence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the analysis worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, app, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the database schema before serving")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, app *App, migrate bool) error {
	cfg := app.Config
	logger := app.Logger

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required to serve the API")
	}
	if migrate && app.DB != nil {
		if err := app.DB.Migrate(ctx); err != nil {
			return err
		}
	}

	if opts.configPath != "" {
		config.WatchPolicy(opts.v, logger, app.Policy.Set)
	}

	ctx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	worker := intelligence.NewWorker(app.Outbox, app.Analyzer, app.Events, cfg.Worker, logger, app.Metrics)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	server := api.NewServer(cfg.Server, api.Deps{
		Events:   app.Events,
		Analyzer: app.Analyzer,
		Profiles: app.Profiles,
		Trigger:  app.Outbox,
		Tokens:   app.Tokens,
		Ready:    app.Ready,
		Logger:   logger,
		Metrics:  app.Metrics,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Error("shutdown error", zap.Error(serr))
	}

	cancelWorker()
	<-workerDone
	logger.Info("stopped", zap.Duration("uptime", app.Metrics.Uptime()))
	return err
}
