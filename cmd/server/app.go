package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/igorsal/pr-sentinel/api/handlers"
	"github.com/igorsal/pr-sentinel/internal/bus"
	"github.com/igorsal/pr-sentinel/internal/config"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/models"
	"github.com/igorsal/pr-sentinel/internal/poller"
	"github.com/igorsal/pr-sentinel/internal/services"
	"github.com/igorsal/pr-sentinel/internal/webhook"
	"github.com/igorsal/pr-sentinel/internal/worker"
	"github.com/igorsal/pr-sentinel/io/claude"
	"github.com/igorsal/pr-sentinel/io/github"
	"github.com/igorsal/pr-sentinel/io/postgres"
	"github.com/igorsal/pr-sentinel/pkg/logger"
	"github.com/igorsal/pr-sentinel/pkg/metrics"
)

const IdleTimeout = 120 * time.Second

// Application holds all dependencies
type Application struct {
	config       *config.Config
	logger       interfaces.Logger
	metrics      interfaces.MetricsCollector
	registry     *prometheus.Registry
	bus          *bus.Bus
	store        *postgres.Store
	orchestrator *services.Orchestrator
	poller       *poller.Poller
	worker       *worker.Worker
	ingress      *webhook.Ingress
	server       *http.Server
}

// newApplication wires the review pipeline. The HTTP server is set up
// separately by setupServer since only serve needs it.
func newApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewAdapter(cfg.Logging.Level, cfg.Logging.Format)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewPrometheusCollector(registry)

	app := &Application{
		config:   cfg,
		logger:   log,
		metrics:  collector,
		registry: registry,
		bus:      bus.New(log, collector),
	}

	githubClient, err := github.NewClient(cfg.GitHub, log, collector)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	claudeClient := claude.NewClient(cfg.Claude, log, collector)

	if cfg.Database.MigrateOnStart {
		if err := postgres.MigrateUp(ctx, cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	app.store, err = postgres.Open(ctx, cfg.Database, log, collector)
	if err != nil {
		return nil, fmt.Errorf("failed to open review store: %w", err)
	}

	app.orchestrator, err = services.NewOrchestrator(githubClient, claudeClient, app.store, services.OrchestratorConfig{
		MaxRetries: cfg.Orchestrator.MaxRetries,
		RetryDelay: cfg.Orchestrator.RetryDelay,
		DryRun:     cfg.Orchestrator.DryRun,
	}, log, collector)
	if err != nil {
		app.store.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	repos := make([]models.MonitoredRepository, 0, len(cfg.Poller.Repositories))
	for _, name := range cfg.Poller.Repositories {
		repo, err := models.ParseRepository(name)
		if err != nil {
			app.store.Close()
			return nil, err
		}
		repos = append(repos, repo)
	}
	app.poller, err = poller.NewPoller(githubClient, app.bus, poller.Config{
		Interval:     cfg.Poller.Interval,
		Repositories: repos,
	}, log, collector)
	if err != nil {
		app.store.Close()
		return nil, fmt.Errorf("failed to create poller: %w", err)
	}

	app.worker, err = worker.New(app.orchestrator, app.bus, worker.Config{
		QueueSize:    cfg.Worker.QueueSize,
		ReviewDrafts: cfg.Worker.ReviewDrafts,
	}, log, collector)
	if err != nil {
		app.store.Close()
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	allowed := make([]webhook.EventType, 0, len(cfg.Webhook.AllowedEvents))
	for _, name := range cfg.Webhook.AllowedEvents {
		allowed = append(allowed, webhook.EventType(strings.ToLower(strings.TrimSpace(name))))
	}
	app.ingress, err = webhook.NewIngress(webhook.Config{
		Secret:              cfg.GitHub.WebhookSecret,
		AllowedEvents:       allowed,
		AllowedRepositories: cfg.Webhook.AllowedRepositories,
		AutoProcess:         cfg.Webhook.AutoProcess,
	}, app.orchestrator, app.bus, log, collector)
	if err != nil {
		app.store.Close()
		return nil, fmt.Errorf("failed to create webhook ingress: %w", err)
	}

	return app, nil
}

// setupServer configures the HTTP server with all routes and middleware
func (app *Application) setupServer() {
	router := handlers.NewRouter(handlers.RouterConfig{
		Health: handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"database": app.store.Ping,
		}, app.logger),
		Webhook: handlers.NewWebhookHandler(app.ingress, app.config.Server.MaxBodyBytes, app.logger),
		Reviews: handlers.NewReviewsHandler(app.orchestrator, app.store, app.logger),
		Repositories: handlers.NewRepositoriesHandler(app.poller, func(r *http.Request) {
			app.poller.Poll(r.Context())
		}, app.logger),
		Metrics:    promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{Registry: app.registry}),
		AdminToken: app.config.Admin.Token,
		Logger:     app.logger,
		Collector:  app.metrics,
	})

	app.server = &http.Server{
		Addr:         app.config.Server.Addr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
}

// run starts the background components and the HTTP server and blocks until
// ctx is cancelled or the server fails
func (app *Application) run(ctx context.Context) error {
	app.setupServer()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.worker.Start(runCtx)
	if app.config.Poller.Enabled {
		if err := app.poller.Start(runCtx); err != nil {
			if !errors.Is(err, poller.ErrNoRepositories) {
				return fmt.Errorf("failed to start poller: %w", err)
			}
			app.logger.Warn("Poller enabled without repositories; only manual polls will run")
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server", "addr", app.server.Addr)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		app.shutdownBackground()
		app.store.Close()
		return fmt.Errorf("server failed to start: %w", err)

	case <-ctx.Done():
		app.logger.Info("Shutdown signal received")
		return app.gracefulShutdown()
	}
}

func (app *Application) shutdownBackground() {
	app.poller.Stop()
	app.worker.Stop()
}

// gracefulShutdown stops intake first, then the HTTP server, then the store
func (app *Application) gracefulShutdown() error {
	app.logger.Info("Starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	app.shutdownBackground()

	var shutdownErr error
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("Graceful shutdown failed, forcing close", err)
		if closeErr := app.server.Close(); closeErr != nil {
			app.logger.Error("Force shutdown also failed", closeErr)
		}
		shutdownErr = fmt.Errorf("server shutdown failed: %w", err)
	}

	app.store.Close()

	if shutdownErr == nil {
		app.logger.Info("Graceful shutdown completed successfully")
	}
	return shutdownErr
}

// close releases resources held outside of run
func (app *Application) close() {
	app.store.Close()
}
