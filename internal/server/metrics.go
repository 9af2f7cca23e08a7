package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "docrag"

	// labelHandler partitions HTTP metrics by route pattern rather than the
	// raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// Tests inject a fresh prometheus.Registry through Config.MetricsRegistry.
type serverMetrics struct {
	// chatRequestsTotal counts /api/chat requests by mode ("query", "index")
	// and outcome ("ok", "no_context", "error", "timeout").
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the duration of each /api/chat request,
	// including document fetch and indexing in index mode.
	chatDurationSeconds *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat requests completed, partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/chat requests, partitioned by mode.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument records request count and latency for every request served by
// mux. It must wrap the mux directly so the matched route pattern, which the
// mux stores on the request, is visible after the call.
func (m *serverMetrics) instrument(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		mux.ServeHTTP(rw, r)

		handler := r.Pattern
		if handler == "" {
			handler = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}

// LifecycleMetrics exports store deletion activity. Pass Observe to
// lifecycle.WithDeletionHook and the manager's PendingCount to WatchPending.
type LifecycleMetrics struct {
	factory   promauto.Factory
	deletions *prometheus.CounterVec
}

// NewLifecycleMetrics registers the deletion counter against reg.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	factory := promauto.With(reg)
	return &LifecycleMetrics{
		factory: factory,
		deletions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "deletions_total",
			Help:      "Store deletion attempts, partitioned by result (immediate, deferred, drained, failed).",
		}, []string{"result"}),
	}
}

// Observe counts one deletion attempt.
func (m *LifecycleMetrics) Observe(result string) {
	m.deletions.WithLabelValues(result).Inc()
}

// WatchPending exports the size of the pending-deletion set, read on every
// scrape.
func (m *LifecycleMetrics) WatchPending(pending func() int) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "pending_deletions",
		Help:      "Stores whose deletion is deferred until shutdown.",
	}, func() float64 { return float64(pending()) })
}
