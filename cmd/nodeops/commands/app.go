package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nodeops/nodeops/pkg/config"
	"github.com/nodeops/nodeops/pkg/orchestrator"
	"github.com/nodeops/nodeops/pkg/runner"
	"github.com/nodeops/nodeops/pkg/stores"
	"github.com/nodeops/nodeops/pkg/telemetry"
)

// app holds everything one CLI invocation needs.
type app struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	registry stores.Registry
	engine   *orchestrator.Engine

	closers []func() error
}

// loadConfig reads the config file, applies LOG_LEVEL and the global flags,
// and sets the global log level used by the runners from the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Telemetry.Logging.Level = lvl
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Telemetry.Logging.Format = "json"
	}

	level, err := zerolog.ParseLevel(cfg.Telemetry.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Telemetry.Logging.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	return cfg, nil
}

// newApp loads configuration and builds the registry, runner and engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a := &app{cfg: cfg, tel: tel}

	if metricsAddr != "" {
		stop, addr, err := serveMetrics(metricsAddr, tel.Metrics.Handler())
		if err != nil {
			a.close()
			return nil, err
		}
		log.Info().Str("address", addr).Msg("Serving metrics")
		a.closers = append(a.closers, stop)
	}

	registry, err := stores.NewSQLiteRegistry(ctx, stores.Config{Path: cfg.Registry.Path})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open host registry: %w", err)
	}
	a.registry = registry
	a.closers = append(a.closers, registry.Close)

	r, err := newRunner(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	if c, ok := r.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.engine, err = orchestrator.New(orchestrator.Config{
		Settings:  *cfg,
		Runner:    r,
		Registry:  registry,
		Telemetry: tel,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return a, nil
}

func newRunner(cfg *config.Config) (runner.Runner, error) {
	if cfg.Runner.Mode == config.RunnerSSH {
		r, err := runner.NewSSHRunner(cfg.Runner.SSH)
		if err != nil {
			return nil, fmt.Errorf("failed to create ssh runner: %w", err)
		}
		return r, nil
	}
	return runner.NewLocalRunner(runner.LocalConfig{Shell: cfg.Runner.Shell}), nil
}

// close releases the runner and registry and flushes telemetry.
func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, a.tel.Shutdown(ctx))

	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("Failed to release resources")
	}
}

// withApp builds an app, runs fn and releases the app.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
