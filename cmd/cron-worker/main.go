package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/saakshy/saakshy-backend/internal/cron"
	"github.com/saakshy/saakshy-backend/internal/ledger"
	"github.com/saakshy/saakshy-backend/pkg/config"
	"github.com/saakshy/saakshy-backend/pkg/db"
	"github.com/saakshy/saakshy-backend/pkg/logger"
	"github.com/saakshy/saakshy-backend/pkg/metrics"
	"github.com/saakshy/saakshy-backend/pkg/migrate"
	"github.com/saakshy/saakshy-backend/pkg/outbox"
	"github.com/saakshy/saakshy-backend/pkg/redis"
)

const serviceKind = "cron-worker"

type options struct {
	once bool
	jobs []string
}

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	jobs := flag.String("jobs", "", "comma separated job names for -once (default all)")
	flag.Parse()

	envErr := godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"interval":    cfg.Audit.Interval.String(),
	})
	if envErr != nil {
		logg.Debug(ctx, "no .env file, using process environment")
	}

	err = run(ctx, cfg, logg, options{once: *once, jobs: selectedJobs(*jobs)})
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
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

	svc, err := newCronService(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	if opts.once {
		logg.Info(logg.WithField(ctx, "jobs", opts.jobs), "running single cron cycle")
		return svc.RunOnce(ctx, opts.jobs...)
	}
	logg.Info(ctx, "cron worker started")
	return svc.Run(ctx)
}

func newCronService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())
	audit, err := cron.NewChainAuditJob(cron.ChainAuditJobParams{
		Logger:    logg,
		DB:        dbClient,
		Store:     ledger.NewGormStore(dbClient.DB()),
		Outbox:    outbox.NewService(outboxRepo, logg),
		Metrics:   metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		BatchSize: cfg.Audit.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("chain audit job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	registry, err := cron.NewRegistry(audit, retention)
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Audit.Interval,
	})
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceKind + ":" + env
}

func selectedJobs(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "close failed", err)
	}
}
