package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inventory       *InventoryMetrics
}

// NewMetrics initialises the registry, HTTP metrics and ledger metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partsledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "partsledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	registry.MustRegister(requests, duration)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		inventory:       newInventoryMetrics(registry),
	}
}

// Handler returns the http.Handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Inventory returns the ledger workflow collectors.
func (m *Metrics) Inventory() *InventoryMetrics {
	if m == nil {
		return nil
	}
	return m.inventory
}

// InventoryMetrics counts ledger movements, workflow failures and reconciliation drift.
type InventoryMetrics struct {
	movements *prometheus.CounterVec
	failures  *prometheus.CounterVec
	drift     prometheus.Gauge
}

func newInventoryMetrics(registerer prometheus.Registerer) *InventoryMetrics {
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partsledger_inventory_movements_total",
		Help: "Committed ledger movements by kind.",
	}, []string{"kind"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partsledger_inventory_workflow_failures_total",
		Help: "Rejected or rolled back workflows by reason.",
	}, []string{"workflow", "reason"})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "partsledger_inventory_reconcile_drift",
		Help: "Balances that disagreed with their movements in the last full reconciliation.",
	})
	registerer.MustRegister(movements, failures, drift)
	return &InventoryMetrics{movements: movements, failures: failures, drift: drift}
}

// MovementPosted counts one committed movement.
func (m *InventoryMetrics) MovementPosted(kind string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(kind).Inc()
}

// WorkflowFailed counts one failed workflow.
func (m *InventoryMetrics) WorkflowFailed(workflow, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(workflow, reason).Inc()
}

// ReconcileDrift records the drift count of a full reconciliation.
func (m *InventoryMetrics) ReconcileDrift(count int) {
	if m == nil {
		return
	}
	m.drift.Set(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
