package commands

import (
	"context"
	"fmt"

	"github.com/driftline/driftline/pkg/config"
	"github.com/driftline/driftline/pkg/engine"
	"github.com/driftline/driftline/pkg/stores"
	"github.com/driftline/driftline/pkg/telemetry"
)

// app bundles the wired-up components every subcommand needs.
type app struct {
	cfg    *config.Config
	store  *stores.SQLiteStore
	engine *engine.Datastore
	logger *telemetry.Logger
	tracer *telemetry.Tracer
}

// openApp loads the configuration, opens the database, and builds the
// engine on top of it. Callers must Close the returned app.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	telCfg := cfg.TelemetryConfig()
	if verbose {
		telCfg.Logging.Level = "debug"
	}

	logger, err := telemetry.NewLogger(telCfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	metrics, err := telemetry.NewMetrics(telCfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	if telCfg.Metrics.Enabled {
		errCh := metrics.StartMetricsServer()
		go func() {
			if err := <-errCh; err != nil {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
	}

	tracer, err := telemetry.NewTracer(telCfg.Tracing, telCfg.ServiceName, telCfg.ServiceVersion, telCfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ds := engine.New(store, engine.Options{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
		Retry: engine.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay,
		},
		ExtraEphemeralPaths: cfg.EphemeralPaths,
	})

	return &app{
		cfg:    cfg,
		store:  store,
		engine: ds,
		logger: logger,
		tracer: tracer,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close(ctx context.Context) {
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("tracer shutdown failed")
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("database close failed")
	}
}
