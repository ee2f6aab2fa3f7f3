package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/petcorner/storefront/internal/di"
	"github.com/petcorner/storefront/internal/handlers"
	"github.com/petcorner/storefront/internal/platform/config"
	"github.com/petcorner/storefront/internal/platform/observability"
	"github.com/petcorner/storefront/internal/platform/secrets"
)

const meterName = "github.com/petcorner/storefront"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now().UTC()

	level, err := config.Lookup("LOG_LEVEL")
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	baseLogger, err := observability.NewLogger(level)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("storefront")

	projectID, err := config.Lookup("STOREFRONT_SECRETS_PROJECT_ID")
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	meter := otel.GetMeterProvider().Meter(meterName)
	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(projectID),
		secrets.WithMeter(meter),
	)
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Error("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}

	container, err := di.NewContainer(ctx, cfg, logger,
		di.WithMeter(meter),
		di.WithBuildInfo(buildInfo(startedAt)),
	)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}

	httpLogger := logger.Named("http")
	router, err := container.Router(
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(projectID),
		handlers.CustomerMiddleware(cfg.ERP.ThirdPartyID),
		observability.RequestLoggerMiddleware(),
		observability.RecoveryMiddleware(httpLogger),
	)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		httpLogger.Info("storefront listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		return nil
	})
	return group.Wait()
}

func buildInfo(started time.Time) handlers.BuildInfo {
	lookup := func(key, fallback string) string {
		value, err := config.Lookup(key)
		if err != nil || strings.TrimSpace(value) == "" {
			return fallback
		}
		return value
	}
	return handlers.BuildInfo{
		Version:     lookup("STOREFRONT_BUILD_VERSION", "dev"),
		CommitSHA:   lookup("STOREFRONT_BUILD_COMMIT_SHA", "unknown"),
		Environment: lookup("STOREFRONT_ENVIRONMENT", "local"),
		StartedAt:   started,
	}
}
