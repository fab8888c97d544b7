// Package bootstrap assembles the application graph from configuration. Both
// the HTTP service and kitctl build on it so they share one wiring.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/events"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/sqlstore"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/userstore"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/app"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/config"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/metrics"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// App is the wired application: one store, the three registries and the
// dispatcher that runs use cases against them.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Store      *sqlstore.Store
	Registries *ports.Registries
	Sinks      *events.Sinks
	Dispatcher *app.Dispatcher
	Health     *ports.HealthRegistry
}

// LoadConfig loads the profile and validates it.
func LoadConfig(profile string) (*config.Config, error) {
	cfg, err := config.Load(profile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// NewLogger builds the process logger from the log section, writing to w.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return logging.NewWithWriter(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	}, w)
}

// StoreConfig translates the database section.
func StoreConfig(db config.DatabaseConfig) sqlstore.Config {
	return sqlstore.Config{
		Driver:          db.Driver,
		DSN:             db.DSN,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		Strict:          db.StrictMapping,
	}
}

// NewMigrator prepares the user schema migrations for the configured database.
func NewMigrator(cfg *config.Config, logger *slog.Logger) (*sqlstore.Migrator, error) {
	return sqlstore.NewMigrator(StoreConfig(cfg.Database), userstore.Migrations(), logger)
}

// Migrate applies pending migrations.
func Migrate(cfg *config.Config, logger *slog.Logger) (err error) {
	m, err := NewMigrator(cfg, logger)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, m.Close())
	}()

	return m.Up()
}

// New wires the application. The caller owns the result and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	met := metrics.New(reg)

	if cfg.Database.AutoMigrate {
		if err := Migrate(cfg, logger); err != nil {
			return nil, err
		}
	}

	store, err := sqlstore.Open(ctx, StoreConfig(cfg.Database),
		sqlstore.WithLogger(logger),
		sqlstore.WithMetrics(met),
	)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	sinks, err := events.FromConfig(ctx, cfg.Events, cfg.Client, logger)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	health := ports.NewHealthRegistry()
	checkers := []ports.HealthChecker{store}
	eventSinks := make([]app.EventSink, 0, len(sinks.List))

	for _, s := range sinks.List {
		checkers = append(checkers, s)
		eventSinks = append(eventSinks, s)
	}

	for _, c := range checkers {
		if err := health.Register(c); err != nil {
			return nil, errors.Join(fmt.Errorf("registering health check: %w", err), sinks.Close(), store.Close())
		}
	}

	regs := ports.NewRegistries()
	userstore.Register(regs.Repositories, cfg.Database.StrictMapping)
	regs.Services.Register(app.NewNormalizer(app.WithTitleCaseNames()), app.ServiceNormalizer)
	regs.Services.Register(app.NewFanOutPublisher(met, eventSinks...), app.ServiceEvents)
	app.RegisterUserUseCases(regs.UseCases, app.NewExecutor(logger))

	return &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    met,
		Gatherer:   reg,
		Store:      store,
		Registries: &regs,
		Sinks:      sinks,
		Dispatcher: app.NewDispatcher(app.DispatcherConfig{
			Sessions:   store,
			Registries: &regs,
			Metrics:    met,
			Logger:     logger,
		}),
		Health: health,
	}, nil
}

// Close releases broker connections and the database pool.
func (a *App) Close() error {
	return errors.Join(a.Sinks.Close(), a.Store.Close())
}
