// Package metrics provides Prometheus metrics for lexcheck
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors
type Metrics struct {
	VerificationsTotal *prometheus.CounterVec
	BatchGroupDuration prometheus.Histogram
	BatchRunsTotal     *prometheus.CounterVec
	ProviderCalls      *prometheus.CounterVec
	ProviderDuration   prometheus.Histogram
	IndexBuildsTotal   prometheus.Counter
}

// New creates and registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexcheck_verifications_total",
				Help: "Citation verifications by terminal status",
			},
			[]string{"status"},
		),
		BatchGroupDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexcheck_batch_group_duration_seconds",
				Help:    "Duration of one citation group including persistence",
				Buckets: prometheus.DefBuckets,
			},
		),
		BatchRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexcheck_batch_runs_total",
				Help: "Batch runs by final status",
			},
			[]string{"status"},
		),
		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexcheck_provider_calls_total",
				Help: "External similarity provider calls",
			},
			[]string{"provider", "outcome"},
		),
		ProviderDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexcheck_provider_call_duration_seconds",
				Help:    "External similarity provider call latency",
				Buckets: prometheus.DefBuckets,
			},
		),
		IndexBuildsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lexcheck_index_builds_total",
				Help: "Act section index builds",
			},
		),
	}
}

// NewDefault registers on the default registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
