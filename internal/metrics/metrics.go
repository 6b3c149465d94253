// Package metrics provides Prometheus instrumentation for the prediction
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PredictionsCreated counts submitted predictions, partitioned by asset.
	PredictionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predyx_predictions_created_total",
		Help: "Total number of predictions submitted",
	}, []string{"asset"})

	// PredictionsResolved counts resolutions, partitioned by outcome.
	PredictionsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predyx_predictions_resolved_total",
		Help: "Total number of predictions resolved",
	}, []string{"accurate"})

	// AccuracyScore observes resolved accuracy scores in basis points.
	AccuracyScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "predyx_accuracy_score_bp",
		Help:    "Accuracy scores of resolved predictions in basis points",
		Buckets: []float64{0, 2500, 5000, 7500, 9000, 9500, 9800, 9900, 10000},
	})

	// SubmitRejections counts rejected submissions by reason.
	SubmitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predyx_submit_rejections_total",
		Help: "Prediction submissions rejected before commit",
	}, []string{"reason"})

	// BulkResolveItems counts bulk-resolution items by result.
	BulkResolveItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predyx_bulk_resolve_items_total",
		Help: "Bulk resolution items processed",
	}, []string{"result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predyx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predyx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "predyx_http_request_duration_seconds",
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

		// Use the raw path for the label; routes here are low-cardinality.
		path := r.URL.Path
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
