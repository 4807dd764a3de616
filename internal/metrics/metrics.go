// Package metrics provides Prometheus instrumentation for the paper ledger.
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
	// LedgerOps counts ledger operations by operation and result kind
	// ("ok" or the rejection kind).
	LedgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_ledger_operations_total",
		Help: "Ledger operations by operation and result",
	}, []string{"op", "result"})

	// OpLatency tracks end-to-end latency of ledger operations.
	OpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paper_ledger_operation_latency_seconds",
		Help:    "Ledger operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// ArithmeticOverflows counts checked-math guards that tripped. Any
	// non-zero value points at unvalidated input upstream.
	ArithmeticOverflows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_ledger_arithmetic_overflows_total",
		Help: "Checked arithmetic overflows by operation",
	}, []string{"op"})

	// ActivePositions tracks positions opened minus positions closed since
	// process start.
	ActivePositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paper_ledger_active_positions",
		Help: "Positions opened minus closed by this instance",
	})

	// StakedVolume accumulates USD micros staked, by side.
	StakedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_ledger_staked_micros_total",
		Help: "Cumulative USD micros staked by side",
	}, []string{"side"})

	// EventsPublished counts event deliveries by sink and result.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_ledger_events_published_total",
		Help: "Event deliveries by sink and result",
	}, []string{"sink", "result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paper_ledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paper_ledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

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

		// Route pattern keeps owner addresses out of the label set.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return h.Hijack()
}
