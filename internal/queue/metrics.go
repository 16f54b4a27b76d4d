package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics for Prometheus monitoring.
var (
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_jobs",
			Help: "Number of jobs in the queue by state, as of the last status query",
		},
		[]string{"state"},
	)

	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"backend"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_processed_total",
			Help: "Total number of job attempts by outcome",
		},
		[]string{"outcome"}, // completed, retried, dead
	)

	JobProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_job_processing_duration_seconds",
			Help:    "Duration of job handler invocations",
			Buckets: prometheus.DefBuckets,
		},
	)

	DLQJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dlq_jobs_total",
			Help: "Total number of jobs moved to the dead letter queue",
		},
		[]string{"cause"}, // permanent, exhausted
	)
)

func recordStatus(s Status) {
	QueueDepth.WithLabelValues("waiting").Set(float64(s.Waiting))
	QueueDepth.WithLabelValues("active").Set(float64(s.Active))
	QueueDepth.WithLabelValues("delayed").Set(float64(s.Delayed))
	QueueDepth.WithLabelValues("completed").Set(float64(s.Completed))
	QueueDepth.WithLabelValues("failed").Set(float64(s.Failed))
}
