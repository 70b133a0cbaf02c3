package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision outcome and mode label values.
const (
	OutcomeAllow = "allow"
	OutcomeDeny  = "deny"
	OutcomeError = "error"

	ModeEnforced = "enforced"
	ModeDryRun   = "dry_run"
)

// Metrics holds the Prometheus metrics emitted by the authorization middleware.
type Metrics struct {
	decisionsTotal        *prometheus.CounterVec
	decisionDuration      *prometheus.HistogramVec
	fieldExtractionErrors *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authz_decisions_total",
				Help: "Policy decisions partitioned by outcome and enforcement mode",
			},
			[]string{"outcome", "mode"},
		),

		decisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authz_decision_duration_seconds",
				Help:    "Latency of decision point calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		fieldExtractionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authz_field_extraction_errors_total",
				Help: "Required field extractions that failed and degraded to null",
			},
			[]string{"field"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.decisionsTotal,
		m.decisionDuration,
		m.fieldExtractionErrors,
	)

	return m
}

// RecordDecision records one decision outcome. Safe to call on a nil receiver
// so the middleware can run without metrics wired.
func (m *Metrics) RecordDecision(outcome, mode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(outcome, mode).Inc()
	if duration > 0 {
		m.decisionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// RecordFieldExtractionError counts a degraded required-field extraction.
func (m *Metrics) RecordFieldExtractionError(field string) {
	if m == nil {
		return
	}
	m.fieldExtractionErrors.WithLabelValues(field).Inc()
}

// Registry exposes the underlying registry for test collection.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
