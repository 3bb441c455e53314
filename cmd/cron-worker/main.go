package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tracehq/trace-backend/internal/cron"
	"github.com/tracehq/trace-backend/internal/ingest"
	"github.com/tracehq/trace-backend/internal/tracks"
	"github.com/tracehq/trace-backend/pkg/config"
	"github.com/tracehq/trace-backend/pkg/db"
	"github.com/tracehq/trace-backend/pkg/logger"
	"github.com/tracehq/trace-backend/pkg/metrics"
	"github.com/tracehq/trace-backend/pkg/migrate"
	"github.com/tracehq/trace-backend/pkg/redis"
)

const lockKeyFormat = "trace:cron-worker:lock:%s"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	requireResource(ctx, logg, "cron lock", err)

	momentRepo := ingest.NewRepository(dbClient.DB())
	trackRepo := tracks.NewRepository(dbClient.DB())

	stuckJob, err := cron.NewStuckProcessingJob(cron.StuckProcessingJobParams{
		Logger:  logg,
		Moments: momentRepo,
		Tracks:  trackRepo,
		Metrics: metricsCollector,
		Cutoff:  cfg.Cron.StuckProcessingCutoff,
	})
	requireResource(ctx, logg, "stuck-processing job", err)

	cleanupJob, err := cron.NewPendingUploadCleanupJob(cron.PendingUploadCleanupJobParams{
		Logger:    logg,
		DB:        dbClient,
		Moments:   momentRepo,
		Tracks:    trackRepo,
		Metrics:   metricsCollector,
		Retention: cfg.Cron.PendingRetention,
	})
	requireResource(ctx, logg, "pending-upload cleanup job", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(stuckJob, cleanupJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	requireResource(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "starting cron worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
