// Package observability exposes the node's prometheus metrics and the HTTP
// middleware that feeds them.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the node's collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
	queryRuns     *prometheus.GaugeVec
	documentOps   *prometheus.CounterVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nildb_http_requests_total",
			Help: "HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nildb_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		queryRuns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nildb_query_runs",
			Help: "Background query runs by status.",
		}, []string{"status"}),
		documentOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nildb_document_operations_total",
			Help: "Data-plane document operations by kind.",
		}, []string{"operation"}),
	}
	m.registry.MustRegister(m.httpRequests, m.httpDurations, m.queryRuns, m.documentOps)
	return m
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunStarted bumps the running-runs gauge.
func (m *Metrics) RunStarted() {
	m.queryRuns.WithLabelValues("running").Inc()
}

// RunFinished moves a run from running to its terminal status.
func (m *Metrics) RunFinished(status string) {
	m.queryRuns.WithLabelValues("running").Dec()
	m.queryRuns.WithLabelValues(status).Inc()
}

// DocumentOp counts one data-plane operation.
func (m *Metrics) DocumentOp(operation string) {
	m.documentOps.WithLabelValues(operation).Inc()
}

// Middleware records request counts and latencies, labelled by the chi
// route pattern rather than the raw path so IDs do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapper.status)).Inc()
		m.httpDurations.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
