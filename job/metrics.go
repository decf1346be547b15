package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the job-level prometheus instruments. They are registered
// against the registerer the manager is constructed with, so tests can use
// isolated registries.
type metrics struct {
	submitted       prometheus.Counter
	completed       prometheus.Counter
	failed          prometheus.Counter
	cancelled       prometheus.Counter
	webhookFailures prometheus.Counter
	processingTime  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "weft_jobs_submitted_total",
			Help: "Total number of jobs accepted",
		}),
		completed: factory.NewCounter(prometheus.CounterOpts{
			Name: "weft_jobs_completed_total",
			Help: "Total number of jobs that completed successfully",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "weft_jobs_failed_total",
			Help: "Total number of jobs that failed",
		}),
		cancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "weft_jobs_cancelled_total",
			Help: "Total number of jobs cancelled",
		}),
		webhookFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "weft_job_webhook_failures_total",
			Help: "Total number of user webhook deliveries that failed",
		}),
		processingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "weft_job_processing_seconds",
			Help:    "Processing time of completed jobs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}
