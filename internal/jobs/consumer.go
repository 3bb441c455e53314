package jobs

import (
	"context"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/tracehq/trace-backend/pkg/config"
	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/logger"
	"github.com/tracehq/trace-backend/pkg/metrics"
)

// Handler executes one upload job. publishedAt is the broker publish time,
// used as the enrichment fallback timestamp.
type Handler func(ctx context.Context, job UploadJob, publishedAt time.Time) error

// FailureMarker converges the record owning a storage key to failed once a
// job is out of attempts.
type FailureMarker interface {
	MarkFailed(ctx context.Context, storageKey string) (bool, error)
}

// Consumer pulls jobs from one queue and drives them through a handler.
// Delivery is at-least-once; the handler must be idempotent.
type Consumer struct {
	queue        string
	subscription *pubsub.Subscriber
	handler      Handler
	failures     FailureMarker
	logg         *logger.Logger
	metrics      *metrics.WorkerMetrics
	maxAttempts  int
}

// ConsumerParams wires one queue consumer.
type ConsumerParams struct {
	Queue        string
	Subscription *pubsub.Subscriber
	Handler      Handler
	Failures     FailureMarker
	Logger       *logger.Logger
	Metrics      *metrics.WorkerMetrics
	Settings     config.QueueSettings
}

// NewConsumer constructs a consumer for one typed queue.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Queue == "" {
		return nil, errors.New("queue name is required")
	}
	if params.Subscription == nil {
		return nil, errors.New("subscription is required")
	}
	if params.Handler == nil {
		return nil, errors.New("job handler is required")
	}
	if params.Failures == nil {
		return nil, errors.New("failure marker is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	maxAttempts := params.Settings.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if params.Settings.Concurrency > 0 {
		params.Subscription.ReceiveSettings.MaxOutstandingMessages = params.Settings.Concurrency
	}

	return &Consumer{
		queue:        params.Queue,
		subscription: params.Subscription,
		handler:      params.Handler,
		failures:     params.Failures,
		logg:         params.Logger,
		metrics:      params.Metrics,
		maxAttempts:  maxAttempts,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	done := c.metrics.JobStarted(c.queue)
	defer done()
	started := time.Now()
	defer func() { c.metrics.ObserveDuration(c.queue, time.Since(started)) }()

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"queue":      c.queue,
		"message_id": msg.ID,
	})

	job, err := Decode(msg.Data)
	if err != nil {
		// Malformed payloads never become valid; drop them.
		c.logg.Error(logCtx, "discarding undecodable job", err)
		c.metrics.IncProcessed(c.queue, metrics.OutcomeDiscarded)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"record_id":   job.RecordID.String(),
		"storage_key": job.StorageKey,
	})

	publishedAt := msg.PublishTime
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	err = c.handler(logCtx, job, publishedAt)
	if err == nil {
		c.metrics.IncProcessed(c.queue, metrics.OutcomeSuccess)
		return processResult{ack: true}
	}

	if !pkgerrors.IsRetryable(err) {
		c.logg.Error(logCtx, "job failed permanently", err)
		c.markFailed(logCtx, job)
		c.metrics.IncProcessed(c.queue, metrics.OutcomeFailed)
		return processResult{ack: true}
	}

	if attempt := deliveryAttempt(msg); attempt >= c.maxAttempts {
		c.logg.Error(logCtx, "job exhausted its attempts", err)
		c.markFailed(logCtx, job)
		c.metrics.IncProcessed(c.queue, metrics.OutcomeFailed)
		return processResult{ack: true}
	}

	c.logg.Warn(logCtx, "job failed, leaving for retry")
	c.metrics.IncProcessed(c.queue, metrics.OutcomeRetry)
	return processResult{nack: true}
}

// markFailed frees the record's dedup key so the client can re-sign the
// upload. A record already terminal is left untouched.
func (c *Consumer) markFailed(ctx context.Context, job UploadJob) {
	updated, err := c.failures.MarkFailed(ctx, job.StorageKey)
	if err != nil {
		c.logg.Error(ctx, "marking record failed", err)
		return
	}
	if !updated {
		c.logg.Warn(ctx, "record already terminal, not marking failed")
	}
}

func deliveryAttempt(msg *pubsub.Message) int {
	if msg == nil || msg.DeliveryAttempt == nil {
		return 1
	}
	if *msg.DeliveryAttempt < 1 {
		return 1
	}
	return *msg.DeliveryAttempt
}
