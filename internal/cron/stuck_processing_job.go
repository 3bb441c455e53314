package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/tracehq/trace-backend/pkg/logger"
	"github.com/tracehq/trace-backend/pkg/metrics"
)

const defaultStuckProcessingCutoff = 6 * time.Hour

// stuckSweeper converges one record type's stale processing rows to failed.
type stuckSweeper interface {
	FailStuckProcessingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StuckProcessingJobParams configure the stuck-processing recovery job.
type StuckProcessingJobParams struct {
	Logger  *logger.Logger
	Moments stuckSweeper
	Tracks  stuckSweeper
	Metrics *metrics.CronJobMetrics
	Cutoff  time.Duration
}

// NewStuckProcessingJob builds the job that fails records left in
// processing past the cutoff. A record gets stuck when its job is lost
// after the confirm commit (crash before enqueue, exhausted broker
// redelivery); failing it is what makes the loss observable.
func NewStuckProcessingJob(params StuckProcessingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Moments == nil {
		return nil, fmt.Errorf("moment sweeper required")
	}
	if params.Tracks == nil {
		return nil, fmt.Errorf("track sweeper required")
	}
	cutoff := params.Cutoff
	if cutoff <= 0 {
		cutoff = defaultStuckProcessingCutoff
	}
	return &stuckProcessingJob{
		logg:    params.Logger,
		moments: params.Moments,
		tracks:  params.Tracks,
		metrics: params.Metrics,
		cutoff:  cutoff,
		now:     time.Now,
	}, nil
}

type stuckProcessingJob struct {
	logg    *logger.Logger
	moments stuckSweeper
	tracks  stuckSweeper
	metrics *metrics.CronJobMetrics
	cutoff  time.Duration
	now     func() time.Time
}

func (j *stuckProcessingJob) Name() string { return "stuck-processing-recovery" }

func (j *stuckProcessingJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.cutoff)

	momentsSwept, err := j.moments.FailStuckProcessingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweep stuck moments: %w", err)
	}
	tracksSwept, err := j.tracks.FailStuckProcessingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweep stuck tracks: %w", err)
	}

	j.metrics.AddSwept(j.Name(), momentsSwept+tracksSwept)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"moments_swept": momentsSwept,
		"tracks_swept":  tracksSwept,
	})
	j.logg.Info(logCtx, "stuck processing recovery complete")
	return nil
}
