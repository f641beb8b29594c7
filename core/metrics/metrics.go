// Package metrics defines the Prometheus collectors exported by Vigil.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector. Construct with New so tests can use a
// private registry.
type Metrics struct {
	HubConnections   prometheus.Gauge
	HubMessages      *prometheus.CounterVec
	HubDropped       prometheus.Counter
	SampleDuration   prometheus.Histogram
	SamplesSkipped   *prometheus.CounterVec
	SourceFailures   *prometheus.CounterVec
	WorkloadActions  *prometheus.CounterVec
	RateLimitDenials *prometheus.CounterVec
	AuthFailures     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HubConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Number of open push connections.",
		}),
		HubMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "hub",
			Name:      "messages_total",
			Help:      "Messages broadcast, by envelope type.",
		}, []string{"type"}),
		HubDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "hub",
			Name:      "dropped_connections_total",
			Help:      "Connections removed after a failed or stalled send.",
		}),
		SampleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vigil",
			Subsystem: "sampler",
			Name:      "duration_seconds",
			Help:      "Time spent collecting one telemetry snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		SamplesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "sampler",
			Name:      "skipped_ticks_total",
			Help:      "Sampling ticks skipped, by reason.",
		}, []string{"reason"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "sampler",
			Name:      "source_failures_total",
			Help:      "Metric source read failures, by source.",
		}, []string{"source"}),
		WorkloadActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "workload",
			Name:      "actions_total",
			Help:      "Workload lifecycle actions, by action and outcome.",
		}, []string{"action", "outcome"}),
		RateLimitDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "ratelimit",
			Name:      "denied_total",
			Help:      "Requests denied by the rate limiter, by bucket.",
		}, []string{"bucket"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Rejected logins and session lookups.",
		}),
	}

	reg.MustRegister(
		m.HubConnections,
		m.HubMessages,
		m.HubDropped,
		m.SampleDuration,
		m.SamplesSkipped,
		m.SourceFailures,
		m.WorkloadActions,
		m.RateLimitDenials,
		m.AuthFailures,
	)
	return m
}

// NewUnregistered returns collectors attached to a throwaway registry.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
