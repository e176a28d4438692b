// Package internal wires the analytics engine to its store, cache and jobs.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"statwise/internal/analytics"
	"statwise/internal/cache"
	"statwise/internal/config"
	"statwise/internal/database"
	"statwise/internal/events"
	"statwise/internal/jobs"
	"statwise/internal/logging"
	"statwise/internal/metrics"
	"statwise/internal/pkg/geoip"
	"statwise/internal/visitors"
)

const jobStopTimeout = 30 * time.Second

// Application holds the long-lived components.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	DB        *database.Manager
	Cache     *cache.Redis
	Tracker   *visitors.Tracker
	Engine    *analytics.Engine
	Collector *events.Collector
	Scheduler *jobs.Scheduler

	geo           *geoip.Locator
	metricsServer *http.Server
}

// NewApp creates a new application instance from the global configuration
func NewApp(ctx context.Context) (*Application, error) {
	return NewAppWithConfig(ctx, config.GetConfig())
}

// NewAppWithConfig connects ClickHouse and Redis, creates the event tables and
// builds every component. Connections are closed again on failure.
func NewAppWithConfig(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger := logging.New(cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry, cfg.AppName)

	app := &Application{Config: cfg, Logger: logger, Registry: registry}
	fail := func(err error) (*Application, error) {
		if cerr := app.closeConnections(); cerr != nil {
			logger.Warn("Failed to close connections", slog.Any("error", cerr))
		}
		return nil, err
	}

	var err error
	if app.DB, err = database.Connect(ctx, cfg, logger); err != nil {
		return fail(fmt.Errorf("failed to initialize database: %w", err))
	}
	if err = app.DB.Migrate(ctx); err != nil {
		return fail(fmt.Errorf("failed to run migrations: %w", err))
	}

	if app.Cache, err = cache.Connect(ctx, cfg.RedisURL, cfg.ConnectRetry(), logger, m); err != nil {
		return fail(fmt.Errorf("failed to initialize cache: %w", err))
	}

	if app.geo, err = geoip.Open(cfg.GeoDBPath, logger); err != nil {
		return fail(fmt.Errorf("failed to open GeoIP database: %w", err))
	}

	store := database.NewStore(app.DB.Conn(), logger, m)
	app.Tracker = visitors.NewTracker(app.Cache, logger, visitors.TrackerOptions{
		SessionTTL:   cfg.SessionTTL(),
		DurationTTL:  cfg.SessionDurationTTL(),
		HeartbeatTTL: cfg.HeartbeatTTL(),
	})
	app.Engine = analytics.NewEngine(store, logger, analytics.EngineOptions{
		FunnelWindow: time.Duration(cfg.FunnelWindowSeconds) * time.Second,
		Workers:      cfg.QueryWorkers,
		Presence:     app.Tracker,
	})

	var locator events.Locator
	if app.geo != nil {
		locator = app.geo
	}
	app.Collector = events.NewCollector(app.Tracker, store, locator, cfg.SaltSecret, logger)

	app.Scheduler = jobs.NewScheduler(logger, m)
	if err = scheduleJobs(app.Scheduler, cfg, app.Tracker, app.Engine, logger); err != nil {
		return fail(fmt.Errorf("failed to initialize jobs: %w", err))
	}

	return app, nil
}

func scheduleJobs(s *jobs.Scheduler, cfg *config.Config, sessions jobs.IdleSessionSource, engine *analytics.Engine, logger *slog.Logger) error {
	durations := jobs.NewSessionDurationJob(sessions, engine, cfg.SessionIdle(), logger)
	if err := s.Register(cfg.SessionDurationSchedule, durations); err != nil {
		return err
	}
	if cfg.RetentionDays > 0 {
		if err := s.Register(cfg.RetentionSchedule, jobs.NewRetentionJob(engine, cfg.RetentionDays, logger)); err != nil {
			return err
		}
	}
	return nil
}

// StartAsync starts the scheduler and, when an address is configured, the
// metrics endpoint.
func (a *Application) StartAsync() error {
	a.Scheduler.Start()

	if a.Config.MetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}))
	a.metricsServer = &http.Server{
		Addr:              a.Config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.Logger.Info("Serving metrics", slog.String("addr", a.Config.MetricsAddr))
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()
	return nil
}

// Shutdown stops the jobs, the metrics endpoint and the connections, in
// that order.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.Info("Initiating graceful shutdown...")

	if a.Scheduler != nil {
		a.Scheduler.Stop(jobStopTimeout)
	}

	var errs []error
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	errs = append(errs, a.closeConnections())

	err := errors.Join(errs...)
	if err == nil {
		a.Logger.Info("Shutdown complete")
	}
	return err
}

func (a *Application) closeConnections() error {
	var errs []error
	if a.geo != nil {
		if err := a.geo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("geoip: %w", err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	return errors.Join(errs...)
}
