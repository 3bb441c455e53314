package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tracehq/trace-backend/internal/enrich"
	"github.com/tracehq/trace-backend/internal/ingest"
	"github.com/tracehq/trace-backend/internal/jobs"
	"github.com/tracehq/trace-backend/internal/tracks"
	"github.com/tracehq/trace-backend/pkg/config"
	"github.com/tracehq/trace-backend/pkg/db"
	"github.com/tracehq/trace-backend/pkg/logger"
	"github.com/tracehq/trace-backend/pkg/metrics"
	"github.com/tracehq/trace-backend/pkg/pubsub"
	"github.com/tracehq/trace-backend/pkg/storage/gcs"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	gcsClient, err := gcs.NewClient(ctx, cfg.Storage, cfg.GCP, logg)
	requireResource(ctx, logg, "object storage", err)
	defer gcsClient.Close()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, cfg.Queues, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	workerMetrics := metrics.NewWorkerMetrics(prometheus.DefaultRegisterer)
	momentRepo := ingest.NewRepository(dbClient.DB())

	enrichService, err := enrich.NewService(enrich.ServiceParams{
		Repo:   momentRepo,
		Store:  gcsClient,
		Logger: logg,
		Bucket: cfg.Storage.BucketName,
		Media:  cfg.Media,
	})
	requireResource(ctx, logg, "enrich service", err)

	streamer, err := tracks.NewStreamer(tracks.StreamerParams{
		Repo:   tracks.NewRepository(dbClient.DB()),
		DB:     dbClient,
		Store:  gcsClient,
		Logger: logg,
		Bucket: cfg.Storage.BucketName,
		Track:  cfg.Track,
	})
	requireResource(ctx, logg, "track streamer", err)

	imageConsumer, err := jobs.NewConsumer(jobs.ConsumerParams{
		Queue:        "image",
		Subscription: pubsubClient.ImageSubscription(),
		Handler:      enrichService.EnrichImage,
		Failures:     enrichService,
		Logger:       logg,
		Metrics:      workerMetrics,
		Settings:     cfg.Queues.Image(),
	})
	requireResource(ctx, logg, "image consumer", err)

	videoConsumer, err := jobs.NewConsumer(jobs.ConsumerParams{
		Queue:        "video",
		Subscription: pubsubClient.VideoSubscription(),
		Handler:      enrichService.EnrichExistence,
		Failures:     enrichService,
		Logger:       logg,
		Metrics:      workerMetrics,
		Settings:     cfg.Queues.Video(),
	})
	requireResource(ctx, logg, "video consumer", err)

	trackConsumer, err := jobs.NewConsumer(jobs.ConsumerParams{
		Queue:        "track",
		Subscription: pubsubClient.TrackSubscription(),
		Handler:      streamer.ProcessTrack,
		Failures:     streamer,
		Logger:       logg,
		Metrics:      workerMetrics,
		Settings:     cfg.Queues.Track(),
	})
	requireResource(ctx, logg, "track consumer", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "upload worker ready")

	metricsServer := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "metrics server stopped unexpectedly", err)
		}
	}()
	defer metricsServer.Close()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return imageConsumer.Run(groupCtx) })
	group.Go(func() error { return videoConsumer.Run(groupCtx) })
	group.Go(func() error { return trackConsumer.Run(groupCtx) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "upload worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "upload worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
