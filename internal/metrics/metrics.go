package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// Decisions counts quota decisions by operation, outcome and period
	Decisions *prometheus.CounterVec
	// ConsumeRetries tracks how many conditional-write attempts a consume needed
	ConsumeRetries *prometheus.HistogramVec
	// VersionConflicts counts conditional writes lost to a concurrent writer
	VersionConflicts prometheus.Counter
	// RecordsCreated counts first-access record creations
	RecordsCreated prometheus.Counter
	// StoreLatency tracks record store operation latency
	StoreLatency *prometheus.HistogramVec
	// InvalidRecords counts corrupt records that failed closed
	InvalidRecords prometheus.Counter
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_decisions_total",
				Help:      "Total number of quota decisions",
			},
			[]string{"operation", "outcome", "period"},
		),
		ConsumeRetries: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "consume_attempts",
				Help:      "Conditional-write attempts needed per consume call",
				Buckets:   []float64{1, 2, 3, 4, 5, 10},
			},
			[]string{"outcome"},
		),
		VersionConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "version_conflicts_total",
				Help:      "Conditional writes lost to a concurrent writer",
			},
		),
		RecordsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_created_total",
				Help:      "Usage records created on first access",
			},
		),
		StoreLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_seconds",
				Help:      "Record store operation latency in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"operation"},
		),
		InvalidRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalid_records_total",
				Help:      "Corrupt usage records that failed closed",
			},
		),
	}

	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.Decisions,
		m.ConsumeRetries,
		m.VersionConflicts,
		m.RecordsCreated,
		m.StoreLatency,
		m.InvalidRecords,
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for test inspection.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordDecision records a quota decision.
func (m *Metrics) RecordDecision(operation, outcome, period string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(operation, outcome, period).Inc()
}

// RecordConsumeAttempts records how many attempts a consume call used.
func (m *Metrics) RecordConsumeAttempts(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.ConsumeRetries.WithLabelValues(outcome).Observe(float64(attempts))
}

// RecordVersionConflict records a lost conditional write.
func (m *Metrics) RecordVersionConflict() {
	if m == nil {
		return
	}
	m.VersionConflicts.Inc()
}

// RecordCreated records a first-access record creation.
func (m *Metrics) RecordCreated() {
	if m == nil {
		return
	}
	m.RecordsCreated.Inc()
}

// RecordStoreLatency records a store operation duration.
func (m *Metrics) RecordStoreLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.StoreLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordInvalidRecord records a fail-closed corrupt record.
func (m *Metrics) RecordInvalidRecord() {
	if m == nil {
		return
	}
	m.InvalidRecords.Inc()
}

// RecordRequestLatency records HTTP request latency.
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(seconds)
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight gauge.
func (m *Metrics) IncHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight gauge.
func (m *Metrics) DecHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}
