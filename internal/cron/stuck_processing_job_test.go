package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tracehq/trace-backend/pkg/logger"
)

type fakeStuckSweeper struct {
	swept      int64
	err        error
	lastCutoff time.Time
}

func (f *fakeStuckSweeper) FailStuckProcessingBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return f.swept, nil
}

func newStuckProcessingTestJob(t *testing.T, moments, tracks *fakeStuckSweeper) *stuckProcessingJob {
	t.Helper()
	jobIface, err := NewStuckProcessingJob(StuckProcessingJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Moments: moments,
		Tracks:  tracks,
	})
	if err != nil {
		t.Fatalf("NewStuckProcessingJob: %v", err)
	}
	job, ok := jobIface.(*stuckProcessingJob)
	if !ok {
		t.Fatalf("expected stuckProcessingJob, got %T", jobIface)
	}
	return job
}

func TestStuckProcessingJobSweepsBothTables(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	moments := &fakeStuckSweeper{swept: 2}
	tracks := &fakeStuckSweeper{swept: 1}
	job := newStuckProcessingTestJob(t, moments, tracks)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	expectedCutoff := now.Add(-defaultStuckProcessingCutoff)
	if !moments.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s got %s", expectedCutoff, moments.lastCutoff)
	}
	if !tracks.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s got %s", expectedCutoff, tracks.lastCutoff)
	}
}

func TestStuckProcessingJobPropagatesErrors(t *testing.T) {
	t.Parallel()

	moments := &fakeStuckSweeper{err: errors.New("db down")}
	job := newStuckProcessingTestJob(t, moments, &fakeStuckSweeper{})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
