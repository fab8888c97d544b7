// Package main runs the users HTTP service.
package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/http"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/http/handlers"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/bootstrap"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/telemetry"
)

// Set with -ldflags "-X main.Version=... -X main.Commit=... -X main.BuildTime=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := bootstrap.LoadConfig(cmp.Or(os.Getenv("APP_ENVIRONMENT"), "local"))
	if err != nil {
		return err
	}

	logger := bootstrap.NewLogger(cfg, os.Stdout)
	logging.SetDefault(logger)

	logger.Info("starting users service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
		slog.String("database", cfg.Database.Driver),
		slog.Any("event_sinks", cfg.Events.Sinks),
	)

	tel, err := telemetry.New(ctx, cfg.Telemetry, cfg.App)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		if stopErr := tel.Shutdown(context.WithoutCancel(ctx)); stopErr != nil {
			logger.Error("telemetry shutdown", slog.Any("error", stopErr))
		}
	}()

	kit, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := kit.Close(); closeErr != nil {
			logger.Error("closing resources", slog.Any("error", closeErr))
		}
	}()

	server := http.New(&cfg.Server, logger)
	http.SetupRouter(server.Engine(), http.NewDefaultRouterConfig(
		logger,
		&cfg.App,
		&cfg.Auth,
		handlers.NewHealthHandler(kit.Health, handlers.NewBuildInfo(Version, Commit, BuildTime), kit.Gatherer),
		handlers.NewUsersHandler(kit.Dispatcher),
	))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, cfg.Server.ShutdownTimeout) })
	g.Go(func() error {
		<-gctx.Done()

		if ctx.Err() != nil {
			logger.Info("shutdown signal received", slog.Duration("drain_timeout", cfg.Server.ShutdownTimeout))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")

	return nil
}
