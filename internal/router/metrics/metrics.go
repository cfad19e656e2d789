// Package metrics exposes the router's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the router's counters and gauges. One instance is wired
// through the engine at startup; a fresh registry per instance keeps
// tests independent.
type Metrics struct {
	Registry *prometheus.Registry

	CallsEntered        prometheus.Counter
	CallsDeflected      prometheus.Counter
	CallsQueued         prometheus.Counter
	CallsBridged        prometheus.Counter
	OriginationFailures prometheus.Counter
	ActiveCalls         prometheus.Gauge
}

// New creates a metrics set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CallsEntered: factory.NewCounter(prometheus.CounterOpts{
			Name: "acd_calls_entered_total",
			Help: "Caller channels that entered the routing application.",
		}),
		CallsDeflected: factory.NewCounter(prometheus.CounterOpts{
			Name: "acd_calls_deflected_total",
			Help: "Calls refused because the queue was outside operating hours.",
		}),
		CallsQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "acd_calls_queued_total",
			Help: "Calls placed into a waiting queue.",
		}),
		CallsBridged: factory.NewCounter(prometheus.CounterOpts{
			Name: "acd_calls_bridged_total",
			Help: "Calls bridged to an agent.",
		}),
		OriginationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "acd_origination_failures_total",
			Help: "Agent-leg originations that failed or timed out.",
		}),
		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "acd_active_calls",
			Help: "Caller channels currently tracked by the router.",
		}),
	}
}
