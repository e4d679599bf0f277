// Package metrics provides Prometheus metrics for the arrowtail daemon.
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
	// Change detection metrics
	changesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrowtail_changes_detected_total",
			Help: "Total detected file changes by kind",
		},
		[]string{"kind"},
	)

	detectionPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arrowtail_detection_pass_duration_seconds",
			Help:    "Duration of one change-detection pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	detectionPassFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arrowtail_detection_pass_failures_total",
			Help: "Total detection passes aborted by a listing failure",
		},
	)

	trackedFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arrowtail_tracked_files",
			Help: "Number of files currently tracked by the change detector",
		},
	)

	// Ingestion metrics
	ingestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrowtail_ingests_total",
			Help: "Total file ingestions by status",
		},
		[]string{"status"},
	)

	ingestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arrowtail_ingest_duration_seconds",
			Help:    "Duration of one file ingestion (read plus register)",
			Buckets: prometheus.DefBuckets,
		},
	)

	ingestBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arrowtail_ingest_bytes_total",
			Help: "Total bytes read for ingestion",
		},
	)

	// Engine metrics
	loadedTables = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arrowtail_loaded_tables",
			Help: "Number of tables currently registered in the query engine",
		},
	)

	evictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arrowtail_evictions_total",
			Help: "Total tables evicted to respect the loaded-table ceiling",
		},
	)

	reconciliationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arrowtail_eviction_reconciliations_total",
			Help: "Total index entries removed after a missing-table report",
		},
	)

	// View refresh metrics
	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrowtail_view_refreshes_total",
			Help: "Total view refresh cycles by delivery mode",
		},
		[]string{"mode"},
	)

	refreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arrowtail_view_refresh_duration_seconds",
			Help:    "Duration of one view refresh cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	viewTraces = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arrowtail_view_traces",
			Help: "Number of trace rows currently held in view",
		},
	)

	viewPoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arrowtail_view_metric_points",
			Help: "Number of metric points currently held in view",
		},
	)

	// Dashboard HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrowtail_http_requests_total",
			Help: "Total dashboard HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arrowtail_http_request_duration_seconds",
			Help:    "Dashboard HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordChange records one detected file change.
func RecordChange(kind string) {
	changesDetected.WithLabelValues(kind).Inc()
}

// RecordDetectionPass records a completed detection pass.
func RecordDetectionPass(duration time.Duration, tracked int) {
	detectionPassDuration.Observe(duration.Seconds())
	trackedFiles.Set(float64(tracked))
}

// RecordDetectionFailure records a detection pass aborted by an error.
func RecordDetectionFailure() {
	detectionPassFailures.Inc()
}

// RecordIngest records one file ingestion.
func RecordIngest(status string, bytes int64, duration time.Duration) {
	ingestsTotal.WithLabelValues(status).Inc()
	ingestDuration.Observe(duration.Seconds())
	if bytes > 0 {
		ingestBytes.Add(float64(bytes))
	}
}

// SetLoadedTables sets the current registered-table count.
func SetLoadedTables(count int) {
	loadedTables.Set(float64(count))
}

// RecordEvictions records tables evicted by the resource limiter.
func RecordEvictions(count int) {
	evictionsTotal.Add(float64(count))
}

// RecordReconciliations records index entries dropped after missing-table
// reports.
func RecordReconciliations(count int) {
	reconciliationsTotal.Add(float64(count))
}

// RecordRefresh records one view refresh cycle.
func RecordRefresh(mode string, duration time.Duration) {
	refreshesTotal.WithLabelValues(mode).Inc()
	refreshDuration.Observe(duration.Seconds())
}

// SetViewCounts sets the current in-view record counts.
func SetViewCounts(traces, points int) {
	viewTraces.Set(float64(traces))
	viewPoints.Set(float64(points))
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

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
