package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/saakshy/saakshy-backend/api/routes"
	"github.com/saakshy/saakshy-backend/internal/ledger"
	"github.com/saakshy/saakshy-backend/pkg/config"
	"github.com/saakshy/saakshy-backend/pkg/db"
	"github.com/saakshy/saakshy-backend/pkg/logger"
	"github.com/saakshy/saakshy-backend/pkg/metrics"
	"github.com/saakshy/saakshy-backend/pkg/migrate"
	"github.com/saakshy/saakshy-backend/pkg/outbox"
	"github.com/saakshy/saakshy-backend/pkg/redis"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "instance": instanceID()})
	if envErr != nil {
		logg.Debug(ctx, "no .env file, using process environment")
	}

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ledgerService, err := newLedgerService(cfg, logg, dbClient, redisClient, metrics.NewLedgerMetrics(registry))
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + listenPort(cfg),
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, registry, ledgerService),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	ctx = logg.WithField(ctx, "addr", server.Addr)

	served := make(chan error, 1)
	go func() { served <- server.ListenAndServe() }()
	logg.Info(ctx, "api server listening")

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server draining")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newLedgerService wires the store with its outbox hook and, when enabled,
// the redis projection cache.
func newLedgerService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, m *metrics.LedgerMetrics) (ledger.Service, error) {
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	store := ledger.NewGormStore(dbClient.DB(), ledger.NewOutboxHook(emitter))

	var cache ledger.ProjectionCache
	if cfg.FeatureFlags.ProjectionCache {
		cache = ledger.NewRedisProjectionCache(redisClient, cfg.Ledger.CacheTTL, logg, m)
	}
	return ledger.NewService(ledger.ServiceParams{
		Store:               store,
		Cache:               cache,
		Logger:              logg,
		Metrics:             m,
		MaxAttempts:         cfg.Ledger.CommandMaxAttempts,
		RecentActivityLimit: cfg.Ledger.RecentActivityLimit,
	})
}

// listenPort prefers the platform-assigned PORT.
func listenPort(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return cfg.App.Port
}

func instanceID() string {
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	return "local"
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "close failed", err)
	}
}
