// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EdgarRequestsTotal tracks outbound EDGAR requests by host and status code
	EdgarRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "edgar",
			Name:      "requests_total",
			Help:      "Total number of outbound SEC EDGAR requests",
		},
		[]string{"host", "status_code"},
	)

	// EdgarRequestDuration tracks outbound EDGAR request duration
	EdgarRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "edgar",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound SEC EDGAR requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"host"},
	)

	// EdgarRetriesTotal tracks retried EDGAR requests by status code
	EdgarRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "edgar",
			Name:      "retries_total",
			Help:      "Total number of retried SEC EDGAR requests",
		},
		[]string{"status_code"},
	)

	// RateLimitWaitTime tracks time spent waiting on the shared EDGAR rate limiter
	RateLimitWaitTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for the EDGAR rate limiter in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// IngestRunsTotal tracks ingestion runs by outcome
	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Total number of filing ingestion runs by outcome",
		},
		[]string{"outcome"},
	)

	// ArtifactsRegisteredTotal tracks artifact registrations by kind and whether the row was new
	ArtifactsRegisteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "artifacts",
			Name:      "registered_total",
			Help:      "Total number of artifact registrations",
		},
		[]string{"kind", "created"},
	)

	// ParseJobsTotal tracks parse job terminal transitions by status
	ParseJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "parse_total",
			Help:      "Total number of parse job transitions by resulting status",
		},
		[]string{"status"},
	)

	// JobsInFlight tracks parse jobs currently claimed by workers
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "in_flight",
			Help:      "Number of parse jobs currently being processed",
		},
	)

	// DeadletterTotal tracks jobs that exhausted their retry budget
	DeadletterTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "deadletter_total",
			Help:      "Total number of parse jobs moved to deadletter",
		},
	)

	// FreshnessChecksTotal tracks freshness guard decisions
	FreshnessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "freshness",
			Name:      "checks_total",
			Help:      "Total number of freshness guard decisions",
		},
		[]string{"decision"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)
)

// RecordEdgarRequest records an outbound EDGAR request metric
func RecordEdgarRequest(host, statusCode string, durationSeconds float64) {
	EdgarRequestsTotal.WithLabelValues(host, statusCode).Inc()
	EdgarRequestDuration.WithLabelValues(host).Observe(durationSeconds)
}

// RecordParseJob records a parse job transition metric
func RecordParseJob(status string) {
	ParseJobsTotal.WithLabelValues(status).Inc()
}

// RecordFreshnessCheck records a freshness guard decision
func RecordFreshnessCheck(decision string) {
	FreshnessChecksTotal.WithLabelValues(decision).Inc()
}
