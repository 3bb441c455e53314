package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tracehq/trace-backend/pkg/logger"
	"github.com/tracehq/trace-backend/pkg/metrics"
)

const defaultPendingRetention = 7 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pendingMomentSweeper interface {
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type pendingTrackSweeper interface {
	DeletePendingBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// PendingUploadCleanupJobParams configure the pending-upload cleanup job.
type PendingUploadCleanupJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Moments   pendingMomentSweeper
	Tracks    pendingTrackSweeper
	Metrics   *metrics.CronJobMetrics
	Retention time.Duration
}

// NewPendingUploadCleanupJob builds the job that deletes upload intents the
// client never confirmed. Pending rows hold no bytes, but a stale one pins
// its (activity, name, size) key until removed.
func NewPendingUploadCleanupJob(params PendingUploadCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Moments == nil {
		return nil, fmt.Errorf("moment sweeper required")
	}
	if params.Tracks == nil {
		return nil, fmt.Errorf("track sweeper required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultPendingRetention
	}
	return &pendingUploadCleanupJob{
		logg:      params.Logger,
		db:        params.DB,
		moments:   params.Moments,
		tracks:    params.Tracks,
		metrics:   params.Metrics,
		retention: retention,
		now:       time.Now,
	}, nil
}

type pendingUploadCleanupJob struct {
	logg      *logger.Logger
	db        txRunner
	moments   pendingMomentSweeper
	tracks    pendingTrackSweeper
	metrics   *metrics.CronJobMetrics
	retention time.Duration
	now       func() time.Time
}

func (j *pendingUploadCleanupJob) Name() string { return "pending-upload-cleanup" }

func (j *pendingUploadCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	momentsDeleted, err := j.moments.DeletePendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete pending moments: %w", err)
	}

	var tracksDeleted int64
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		tracksDeleted, txErr = j.tracks.DeletePendingBefore(tx, cutoff)
		return txErr
	})
	if err != nil {
		return fmt.Errorf("delete pending tracks: %w", err)
	}

	j.metrics.AddSwept(j.Name(), momentsDeleted+tracksDeleted)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"retention":       j.retention.String(),
		"moments_deleted": momentsDeleted,
		"tracks_deleted":  tracksDeleted,
	})
	j.logg.Info(logCtx, "pending upload cleanup complete")
	return nil
}
