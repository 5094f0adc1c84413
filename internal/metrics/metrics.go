// Package metrics exposes the Prometheus collectors of the insights engine.
// Collectors are registered on an injected registry so that tests and
// multiple engine instances never share global state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "celebrum_insights"

// Collectors groups every metric the engine records.
type Collectors struct {
	// FetchAttempts counts domain fetch attempts by domain and result.
	FetchAttempts *prometheus.CounterVec
	// DomainOutcomes counts final per-domain outcomes of an aggregation.
	DomainOutcomes *prometheus.CounterVec
	// AggregateDuration observes full aggregation latency.
	AggregateDuration prometheus.Histogram
	// PartialFailures counts aggregations with at least one failed domain.
	PartialFailures prometheus.Counter

	RecommendationsIssued *prometheus.CounterVec
	FindingsSkipped       prometheus.Counter
	FeedbackRecorded      *prometheus.CounterVec

	LiveUpdatesStamped *prometheus.CounterVec

	CacheOperations *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "domain_fetch_attempts_total",
				Help:      "Total number of domain fetch attempts",
			},
			[]string{"domain", "result"},
		),
		DomainOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "domain_outcomes_total",
				Help:      "Final outcome of each domain in an aggregation",
			},
			[]string{"domain", "outcome"},
		),
		AggregateDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregate_duration_seconds",
				Help:      "Cross-domain aggregation latency in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		PartialFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregate_partial_failures_total",
				Help:      "Aggregations where at least one domain failed",
			},
		),
		RecommendationsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recommendations_issued_total",
				Help:      "Recommendations returned to callers",
			},
			[]string{"priority"},
		),
		FindingsSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_skipped_total",
				Help:      "Malformed findings skipped during generation",
			},
		),
		FeedbackRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feedback_recorded_total",
				Help:      "Calibration feedback by category and accuracy",
			},
			[]string{"category", "accurate"},
		),
		LiveUpdatesStamped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_updates_stamped_total",
				Help:      "Live updates that received a version",
			},
			[]string{"update_type"},
		),
		CacheOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_cache_operations_total",
				Help:      "Snapshot cache operations by result",
			},
			[]string{"operation", "result"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

// NewNoop returns collectors registered on a private registry. Services use
// it when the caller did not supply collectors.
func NewNoop() *Collectors {
	return New(prometheus.NewRegistry())
}
