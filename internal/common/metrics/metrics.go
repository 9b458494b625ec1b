// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_jobs_completed_total",
			Help: "Total number of chat turns processed to completion",
		},
		[]string{"kind", "outcome"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_jobs_failed_total",
			Help: "Total number of chat turns dropped, by failing stage",
		},
		[]string{"stage", "error_code"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_job_duration_seconds",
			Help:    "Duration of chat turn processing in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		},
		[]string{"kind"},
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_jobs_active",
			Help: "Number of chat turns currently in flight",
		},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_queue_depth",
			Help: "Length of the job queue lists",
		},
		[]string{"list"},
	)

	QueueErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_queue_errors_total",
			Help: "Queue operations that failed or returned malformed payloads",
		},
		[]string{"operation", "reason"},
	)

	CardsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_cards_extracted_total",
			Help: "Total number of distinct cards extracted from responses",
		},
	)

	SubscriptionCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_cache_requests_total",
			Help: "Subscription health lookups by cache result",
		},
		[]string{"result"},
	)

	SubscriptionDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_denials_total",
			Help: "Gated actions denied, by reason code",
		},
		[]string{"reason"},
	)
)
