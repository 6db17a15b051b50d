// Package metrics exposes the Prometheus collectors for turns, agent
// resolution, registry reloads and the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lattice"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	turns          *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	agentFallbacks *prometheus.CounterVec
	modelListFails *prometheus.CounterVec
	locksActive    prometheus.Gauge
	reloads        *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

// MustNewMetrics constructs Metrics registered with reg. Registration errors
// panic, mirroring promauto. A nil reg uses the default registerer.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns executed, by agent and outcome.",
		}, []string{"agent", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a chat turn including agent execution.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"agent"}),
		agentFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "fallbacks_total",
			Help:      "Stored agent ids that no longer resolved and fell back to the default.",
		}, []string{"stored"}),
		modelListFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "model_list_failures_total",
			Help:      "Swallowed failures of an agent's model listing.",
		}, []string{"agent"}),
		locksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "threads",
			Name:      "locks_active",
			Help:      "Threads with a held or pending turn lock.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "registry_reloads_total",
			Help:      "Agent registry rebuilds, by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status class.",
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.turns, m.turnDuration, m.agentFallbacks, m.modelListFails, m.locksActive, m.reloads, m.httpRequests)
	return m
}

// ObserveTurn records one finished turn.
func (m *Metrics) ObserveTurn(agent, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(agent, outcome).Inc()
	m.turnDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// IncAgentFallback counts a stale stored agent id.
func (m *Metrics) IncAgentFallback(stored string) {
	if m == nil {
		return
	}
	m.agentFallbacks.WithLabelValues(stored).Inc()
}

// IncModelListFailure counts a swallowed ListModels error.
func (m *Metrics) IncModelListFailure(agent string) {
	if m == nil {
		return
	}
	m.modelListFails.WithLabelValues(agent).Inc()
}

// SetActiveLocks reports the current number of locked threads.
func (m *Metrics) SetActiveLocks(n int) {
	if m == nil {
		return
	}
	m.locksActive.Set(float64(n))
}

// IncReload counts a registry rebuild attempt.
func (m *Metrics) IncReload(outcome string) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(outcome).Inc()
}

// IncHTTPRequest counts a served request. status is the status class ("2xx").
func (m *Metrics) IncHTTPRequest(method, route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
}
