package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records enrichment job outcomes per queue.
type WorkerMetrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inflight  *prometheus.GaugeVec
}

// Job outcome labels reported by consumers.
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

// NewWorkerMetrics registers the worker metrics on the provided registerer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return &WorkerMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_jobs_processed_total",
		Help: "Enrichment jobs handled, by queue and outcome.",
	}, []string{"queue", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrich_job_duration_seconds",
		Help:    "Time spent processing a single enrichment job.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"queue"})
	inflight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "enrich_jobs_inflight",
		Help: "Enrichment jobs currently being processed.",
	}, []string{"queue"})
	reg.MustRegister(processed, duration, inflight)
	return &WorkerMetrics{
		processed: processed,
		duration:  duration,
		inflight:  inflight,
	}
}

// IncProcessed counts a finished job with the given outcome.
func (w *WorkerMetrics) IncProcessed(queue, outcome string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(queue), normalizeLabel(outcome)).Inc()
}

// ObserveDuration records how long a job took on the given queue.
func (w *WorkerMetrics) ObserveDuration(queue string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(queue)).Observe(duration.Seconds())
}

// JobStarted marks a job in flight; the returned func marks it done.
func (w *WorkerMetrics) JobStarted(queue string) func() {
	if w == nil || w.inflight == nil {
		return func() {}
	}
	gauge := w.inflight.WithLabelValues(normalizeLabel(queue))
	gauge.Inc()
	return gauge.Dec
}
