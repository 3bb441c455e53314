package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tracehq/trace-backend/api/controllers"
	"github.com/tracehq/trace-backend/api/routes"
	"github.com/tracehq/trace-backend/internal/ingest"
	"github.com/tracehq/trace-backend/internal/jobs"
	"github.com/tracehq/trace-backend/internal/tracks"
	"github.com/tracehq/trace-backend/pkg/config"
	"github.com/tracehq/trace-backend/pkg/db"
	"github.com/tracehq/trace-backend/pkg/logger"
	"github.com/tracehq/trace-backend/pkg/migrate"
	"github.com/tracehq/trace-backend/pkg/pubsub"
	"github.com/tracehq/trace-backend/pkg/redis"
	"github.com/tracehq/trace-backend/pkg/storage/gcs"
)

const shutdownGrace = 15 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	gcsClient, err := gcs.NewClient(ctx, cfg.Storage, cfg.GCP, logg)
	requireResource(ctx, logg, "object storage", err)
	defer gcsClient.Close()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, cfg.Queues, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	publisher, err := jobs.NewPublisher(jobs.PublisherParams{
		Image: jobs.NewGCPTopicPublisher(pubsubClient.ImagePublisher()),
		Video: jobs.NewGCPTopicPublisher(pubsubClient.VideoPublisher()),
		Track: jobs.NewGCPTopicPublisher(pubsubClient.TrackPublisher()),
	})
	requireResource(ctx, logg, "job publisher", err)

	ingestService, err := ingest.NewService(ingest.ServiceParams{
		Repo:      ingest.NewRepository(dbClient.DB()),
		DB:        dbClient,
		Signer:    gcsClient,
		Publisher: publisher,
		Logger:    logg,
		Bucket:    cfg.Storage.BucketName,
		Media:     cfg.Media,
		UploadTTL: cfg.Storage.UploadURLExpiry,
	})
	requireResource(ctx, logg, "ingest service", err)

	tracksService, err := tracks.NewService(tracks.ServiceParams{
		Repo:      tracks.NewRepository(dbClient.DB()),
		DB:        dbClient,
		Signer:    gcsClient,
		Publisher: publisher,
		Logger:    logg,
		Bucket:    cfg.Storage.BucketName,
		Track:     cfg.Track,
		UploadTTL: cfg.Storage.UploadURLExpiry,
	})
	requireResource(ctx, logg, "tracks service", err)

	router := routes.NewRouter(
		cfg,
		logg,
		ingestService,
		tracksService,
		controllers.ReadyDeps(dbClient, redisClient, gcsClient, pubsubClient),
		promhttp.Handler(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(runCtx, "api server shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
