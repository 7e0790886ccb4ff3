package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks generation counters. Prometheus collectors live in a
// private registry served on /metrics; the atomic counters back the
// /status snapshot.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	modelAvailable  *prometheus.GaugeVec

	total        atomic.Int64
	successes    atomic.Int64
	exhausted    atomic.Int64
	fatal        atomic.Int64
	rejected     atomic.Int64
	attemptCount atomic.Int64
	failovers    atomic.Int64
	totalLatency atomic.Int64 // nanoseconds, successful requests only
}

// NewMetrics creates the collectors and registers them, plus the Go and
// process collectors, in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeproxy_requests_total",
			Help: "Generation requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeproxy_request_duration_seconds",
			Help:    "Generation request latency by endpoint",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}, []string{"endpoint"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeproxy_attempts_total",
			Help: "Provider attempts by model and result",
		}, []string{"model", "result"}),
		attemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeproxy_attempt_duration_seconds",
			Help:    "Provider attempt latency by model",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 11),
		}, []string{"model"}),
		modelAvailable: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codeproxy_model_available",
			Help: "1 when the model is accepting attempts, 0 while cooling down or dead",
		}, []string{"model"}),
	}
}

// ObserveAttempt implements codegen.Observer.
func (m *Metrics) ObserveAttempt(_ context.Context, a codegen.Attempt) {
	result := "success"
	if a.Err != nil {
		result = a.Class.String()
		if a.Class == provider.ClassTransient {
			m.failovers.Add(1)
		}
	}
	m.attemptCount.Add(1)
	m.attempts.WithLabelValues(a.Model, result).Inc()
	m.attemptDuration.WithLabelValues(a.Model).Observe(a.Latency.Seconds())
}

// RecordOutcome records a finished generation request.
func (m *Metrics) RecordOutcome(endpoint string, kind codegen.OutcomeKind, latency time.Duration) {
	m.total.Add(1)
	switch kind {
	case codegen.OutcomeSuccess:
		m.successes.Add(1)
		m.totalLatency.Add(int64(latency))
	case codegen.OutcomeExhausted:
		m.exhausted.Add(1)
	default:
		m.fatal.Add(1)
	}
	m.requests.WithLabelValues(endpoint, kind.String()).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordRejected records a request refused before orchestration (bad
// method, missing prompt, oversized body).
func (m *Metrics) RecordRejected(endpoint string) {
	m.total.Add(1)
	m.rejected.Add(1)
	m.requests.WithLabelValues(endpoint, "rejected").Inc()
}

// SetModelAvailable updates the availability gauge for model.
func (m *Metrics) SetModelAvailable(model string, available bool) {
	v := 0.0
	if available {
		v = 1
	}
	m.modelAvailable.WithLabelValues(model).Set(v)
}

// Registry exposes the private registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	successes := m.successes.Load()
	snap := MetricsSnapshot{
		Requests:  m.total.Load(),
		Successes: successes,
		Exhausted: m.exhausted.Load(),
		Fatal:     m.fatal.Load(),
		Rejected:  m.rejected.Load(),
		Attempts:  m.attemptCount.Load(),
		Failovers: m.failovers.Load(),
	}
	if successes > 0 {
		snap.AvgLatency = time.Duration(m.totalLatency.Load() / successes)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Requests   int64         `json:"requests"`
	Successes  int64         `json:"successes"`
	Exhausted  int64         `json:"exhausted"`
	Fatal      int64         `json:"fatal"`
	Rejected   int64         `json:"rejected"`
	Attempts   int64         `json:"attempts"`
	Failovers  int64         `json:"failovers"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
}
