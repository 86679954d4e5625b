// Package metrics provides Prometheus instrumentation for apiwarden components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for apiwarden components.
type Registry struct {
	// Admission metrics
	AcquireRequests *prometheus.CounterVec
	AcquireAllowed  *prometheus.CounterVec
	AcquireDenied   *prometheus.CounterVec
	WaitDuration    *prometheus.HistogramVec
	TokensAvailable *prometheus.GaugeVec

	// Adaptive control metrics
	Capacity       *prometheus.GaugeVec
	BackoffEvents  *prometheus.CounterVec
	RecoveryEvents *prometheus.CounterVec
	RateLimitHits  *prometheus.CounterVec

	// Response observation metrics
	ResponseDuration *prometheus.HistogramVec

	// State persistence metrics
	SnapshotsSaved  *prometheus.CounterVec
	SnapshotsFailed *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by apiwarden components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		AcquireRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiwarden",
				Subsystem: "ratelimit",
				Name:      "acquire_requests_total",
				Help:      "Total number of token acquisition attempts",
			},
			[]string{"api", "endpoint"},
		),

		AcquireAllowed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiwarden",
				Subsystem: "ratelimit",
				Name:      "acquire_allowed_total",
				Help:      "Total number of granted token acquisitions",
			},
			[]string{"api", "endpoint"},
		),

		AcquireDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiwarden",
				Subsystem: "ratelimit",
				Name:      "acquire_denied_total",
				Help:      "Total number of denied token acquisitions",
			},
			[]string{"api", "endpoint"},
		),

		WaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "apiwarden",
				Subsystem: "ratelimit",
				Name:      "wait_duration_seconds",
				Help:      "Time spent blocked waiting for tokens",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"api", "endpoint", "priority"},
		),

		TokensAvailable: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "apiwarden",
				Subsystem: "ratelimit",
				Name:      "tokens_available",
				Help:      "Number of tokens currently available",
			},
			[]string{"api", "endpoint"},
		),

		Capacity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "apiwarden",
				Subsystem: "adaptive",
				Name:      "capacity",
				Help:      "Current effective capacity learned from upstream feedback",
			},
			[]string{"api", "endpoint"},
		),

		BackoffEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiwarden",
				Subsystem: "adaptive",
				Name:      "backoff_events_total",
				Help:      "Total number of multiplicative capacity reductions",
			},
			[]string{"api", "endpoint"},
		),

		RecoveryEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiwarden",
				Subsystem: "adaptive",
				Name:      "recovery_events_total",
				Help:      "Total number of capacity recovery steps",
			},
			[]string{"api", "endpoint"},
		),

		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiwarden",
				Subsystem: "adaptive",
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate-limit class responses observed",
			},
			[]string{"api", "endpoint"},
		),

		ResponseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "apiwarden",
				Subsystem: "upstream",
				Name:      "response_duration_seconds",
				Help:      "Observed upstream response times",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"api", "endpoint"},
		),

		SnapshotsSaved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiwarden",
				Subsystem: "state",
				Name:      "snapshots_saved_total",
				Help:      "Total number of successful state snapshots",
			},
			[]string{"store"},
		),

		SnapshotsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiwarden",
				Subsystem: "state",
				Name:      "snapshots_failed_total",
				Help:      "Total number of failed state snapshots",
			},
			[]string{"store"},
		),
	}
}
