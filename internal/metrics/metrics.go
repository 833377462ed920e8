// Package metrics exports the Manager's Prometheus collectors: session
// counts by status, stall emissions, and auto-response firings
// (SPEC_FULL.md DOMAIN STACK), in the same namespace/subsystem/registry
// shape the corpus's own Prometheus exporter uses.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seamus/ptysup/internal/core"
	"github.com/seamus/ptysup/internal/manager"
)

// Exporter owns the registry and collectors cmd/api's /metrics serves.
type Exporter struct {
	registry *prometheus.Registry

	sessionsByStatus *prometheus.GaugeVec
	stallEmissions   prometheus.Counter
	autoResponses    prometheus.Counter

	lastStall float64
	lastAuto  float64
}

// Config configures the exporter. A nil Registry creates a new one.
type Config struct {
	Registry *prometheus.Registry
}

// New creates an Exporter and registers its collectors.
func New(cfg Config) *Exporter {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.sessionsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ptysup",
			Subsystem: "manager",
			Name:      "sessions",
			Help:      "Number of supervised sessions by status.",
		},
		[]string{"status"},
	)

	e.stallEmissions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ptysup",
			Subsystem: "session",
			Name:      "stall_detected_total",
			Help:      "Total number of stall_detected events emitted across all sessions.",
		},
	)

	e.autoResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ptysup",
			Subsystem: "session",
			Name:      "auto_response_firings_total",
			Help:      "Total number of auto-responded blocking prompts across all sessions.",
		},
	)

	registry.MustRegister(e.sessionsByStatus, e.stallEmissions, e.autoResponses)
	return e
}

// Handler returns the http.Handler cmd/api mounts at /metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Refresh samples m's current status counts and cumulative bridge counters
// into the gauges/counters. Called on a short ticker by cmd/api, the way a
// pull-model exporter without per-event hooks into the Manager keeps in
// sync without threading a metrics dependency into internal/manager.
func (e *Exporter) Refresh(m *manager.Manager) {
	for _, status := range []core.SessionStatus{
		core.StatusPending, core.StatusStarting, core.StatusAuthenticating,
		core.StatusReady, core.StatusBusy, core.StatusStopping,
		core.StatusStopped, core.StatusError,
	} {
		e.sessionsByStatus.WithLabelValues(string(status)).Set(0)
	}
	for status, count := range m.GetStatusCounts() {
		e.sessionsByStatus.WithLabelValues(string(status)).Set(float64(count))
	}

	snap := m.Metrics()
	e.stallEmissions.Add(float64(snap.StallEmissions) - e.lastStall)
	e.autoResponses.Add(float64(snap.AutoResponseFirings) - e.lastAuto)
	e.lastStall = float64(snap.StallEmissions)
	e.lastAuto = float64(snap.AutoResponseFirings)
}
