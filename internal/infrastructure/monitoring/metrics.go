package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics (admin API)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Permission metrics
	PermissionChecks *prometheus.CounterVec

	// Guest metrics
	RuntimesActive     prometheus.Gauge
	EvalDuration       prometheus.Histogram
	PromiseResolutions *prometheus.HistogramVec
	HostCalls          *prometheus.CounterVec

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	Allowed        int64
	Denied         int64
	RuntimesActive int64
	Resolved       int64
	Rejected       int64
	TimedOut       int64
}

// NewMetrics creates a new metrics collector backed by its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guesthost_http_requests_total",
				Help: "Total number of admin HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guesthost_http_request_duration_seconds",
				Help:    "Admin HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		PermissionChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guesthost_permission_checks_total",
				Help: "Permission decisions by capability category",
			},
			[]string{"category", "result"},
		),

		RuntimesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "guesthost_runtimes_active",
				Help: "Number of live guest runtimes",
			},
		),
		EvalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "guesthost_eval_duration_seconds",
				Help:    "Guest script evaluation duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		PromiseResolutions: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guesthost_promise_resolution_seconds",
				Help:    "Time from await to settlement of guest promises",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"outcome"},
		),
		HostCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guesthost_host_calls_total",
				Help: "Host operations invoked by guests",
			},
			[]string{"op", "status"},
		),
	}
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an admin HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPermission records a permission decision
func (m *Metrics) RecordPermission(category string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.PermissionChecks.WithLabelValues(category, result).Inc()

	m.mu.Lock()
	if allowed {
		m.snapshot.Allowed++
	} else {
		m.snapshot.Denied++
	}
	m.mu.Unlock()
}

// RecordEval records a guest evaluation
func (m *Metrics) RecordEval(duration time.Duration) {
	if m == nil {
		return
	}
	m.EvalDuration.Observe(duration.Seconds())
}

// RecordPromise records how a bridged promise ended: resolved, rejected or timeout
func (m *Metrics) RecordPromise(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.PromiseResolutions.WithLabelValues(outcome).Observe(duration.Seconds())

	m.mu.Lock()
	switch outcome {
	case "resolved":
		m.snapshot.Resolved++
	case "rejected":
		m.snapshot.Rejected++
	case "timeout":
		m.snapshot.TimedOut++
	}
	m.mu.Unlock()
}

// RecordHostCall records a host operation invoked by a guest
func (m *Metrics) RecordHostCall(op, status string) {
	if m == nil {
		return
	}
	m.HostCalls.WithLabelValues(op, status).Inc()
}

// IncRuntimes increments live runtimes
func (m *Metrics) IncRuntimes() {
	if m == nil {
		return
	}
	m.RuntimesActive.Inc()
	m.mu.Lock()
	m.snapshot.RuntimesActive++
	m.mu.Unlock()
}

// DecRuntimes decrements live runtimes
func (m *Metrics) DecRuntimes() {
	if m == nil {
		return
	}
	m.RuntimesActive.Dec()
	m.mu.Lock()
	m.snapshot.RuntimesActive--
	m.mu.Unlock()
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
