// Package metrics exposes Prometheus collectors for secret retrieval and
// discovery sessions
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Retrieval outcomes
const (
	OutcomeSuccess      = "success"
	OutcomeDenied       = "denied"
	OutcomeNotFound     = "not_found"
	OutcomeConfig       = "configuration"
	OutcomeUnknownError = "error"
)

// Metrics holds every collector used by the service
type Metrics struct {
	registry *prometheus.Registry

	retrievalsTotal   *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	discoveryTotal    *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
	activeStreams     prometheus.Gauge
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		retrievalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvault_demo_secret_retrievals_total",
				Help: "Total number of secret retrievals by outcome and credential method",
			},
			[]string{"outcome", "credential"},
		),
		retrievalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyvault_demo_secret_retrieval_duration_seconds",
				Help:    "Duration of secret retrievals in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"credential"},
		),
		discoveryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvault_demo_discovery_sessions_total",
				Help: "Total number of discovery sessions by terminal state",
			},
			[]string{"state"},
		),
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvault_demo_discovery_events_total",
				Help: "Total number of discovery events emitted by type",
			},
			[]string{"type"},
		),
		activeStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "keyvault_demo_discovery_active_streams",
				Help: "Number of discovery event streams currently open",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRetrieval records the outcome and latency of one retrieval.
// Safe to call on a nil receiver
func (m *Metrics) RecordRetrieval(outcome, credential string, d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalsTotal.WithLabelValues(outcome, credential).Inc()
	m.retrievalDuration.WithLabelValues(credential).Observe(d.Seconds())
}

// RecordDiscovery records a session reaching a terminal state
func (m *Metrics) RecordDiscovery(state string) {
	if m == nil {
		return
	}
	m.discoveryTotal.WithLabelValues(state).Inc()
}

// RecordEvent counts one emitted discovery event
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

// StreamOpened increments the open stream gauge and returns a func that
// decrements it
func (m *Metrics) StreamOpened() func() {
	if m == nil {
		return func() {}
	}
	m.activeStreams.Inc()
	return m.activeStreams.Dec
}
