package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters exported on /metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry    *prometheus.Registry
	fallbacks   *prometheus.CounterVec
	requests    *prometheus.CounterVec
	wizardFiles *prometheus.CounterVec
}

// New registers the hseb5 collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hseb5_fallback_total",
			Help: "Data operations by entity, operation and data source (live, degraded, demo).",
		}, []string{"entity", "op", "source"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hseb5_http_requests_total",
			Help: "HTTP requests served by the demo backend.",
		}, []string{"method", "route", "status"}),
		wizardFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hseb5_wizard_files_total",
			Help: "Files processed by the DVR wizard by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.fallbacks, m.requests, m.wizardFiles)
	return m
}

func (m *Metrics) DataSource(entity, op, source string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(entity, op, source).Inc()
}

func (m *Metrics) Request(method, route, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, status).Inc()
}

func (m *Metrics) WizardFile(result string) {
	if m == nil {
		return
	}
	m.wizardFiles.WithLabelValues(result).Inc()
}
