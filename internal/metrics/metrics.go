// Package metrics provides Prometheus instrumentation for the hedge engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts operations created, partitioned by mode.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedge_operations_created_total",
		Help: "Total number of hedge operations created",
	}, []string{"mode"})

	// StakeVolume tracks cumulative primary stake, partitioned by mode.
	StakeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedge_stake_volume_total",
		Help: "Cumulative primary stake of created operations",
	}, []string{"mode"})

	// SettlementsTotal counts terminal transitions by resulting status.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedge_settlements_total",
		Help: "Total number of operations settled or cancelled",
	}, []string{"status"})

	// OperationLatency tracks lifecycle call latency by action.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hedge_operation_latency_seconds",
		Help:    "Operation lifecycle latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// PendingOperations tracks operations still holding locked funds.
	PendingOperations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hedge_pending_operations",
		Help: "Number of operations in PENDIENTE",
	})

	// PostingsTotal counts ledger rows written, partitioned by kind.
	PostingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedge_ledger_postings_total",
		Help: "Total ledger transactions appended",
	}, []string{"kind"})

	// InsufficientFundsRejections counts create/update calls blocked by a shortfall.
	InsufficientFundsRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hedge_insufficient_funds_rejections_total",
		Help: "Operations rejected for insufficient funds",
	})

	// ReconciliationFailures counts accounts whose balance differs from their ledger.
	ReconciliationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hedge_reconciliation_failures_total",
		Help: "Accounts failing balance reconciliation",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hedge_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedge_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hedge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Since observes the time elapsed from start under action.
func Since(action string, start time.Time) {
	OperationLatency.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", w.ResponseWriter)
	}
	return h.Hijack()
}
