package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the HTTP surface.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	envelopesTotal      *prometheus.CounterVec
	circuitRejections   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the server metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiter_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbiter_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		envelopesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiter_envelopes_total",
				Help: "Response envelopes returned by agent and status",
			},
			[]string{"agent_id", "status"},
		),

		circuitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiter_circuit_rejections_total",
				Help: "Requests rejected with 503 because the circuit was open",
			},
			[]string{"agent_id"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.envelopesTotal,
		m.circuitRejections,
	)
	return m
}

// RecordEnvelope counts one returned envelope by terminal status.
func (m *Metrics) RecordEnvelope(agentID, status string) {
	m.envelopesTotal.WithLabelValues(agentID, status).Inc()
}

// RecordCircuitRejection counts one 503 caused by an open breaker.
func (m *Metrics) RecordCircuitRejection(agentID string) {
	m.circuitRejections.WithLabelValues(agentID).Inc()
}

// Handler returns the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request counts and latencies per endpoint.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		endpoint := endpointName(r.URL.Path)
		m.httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func endpointName(path string) string {
	switch path {
	case "/v1/execute":
		return "execute"
	case "/healthz":
		return "health"
	case "/metrics":
		return "metrics"
	default:
		return "unknown"
	}
}
