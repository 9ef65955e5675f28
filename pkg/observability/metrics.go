package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Inspection workflow metrics
	InspectionsSubmittedTotal *prometheus.CounterVec
	InspectionsReviewedTotal  *prometheus.CounterVec
	ReviewerAssignmentsTotal  *prometheus.CounterVec
	PendingReviewGauge        prometheus.Gauge

	// Notification metrics
	NotificationDispatchTotal    *prometheus.CounterVec
	NotificationFilteredTotal    *prometheus.CounterVec
	PushSubscriptionsActiveGauge prometheus.Gauge

	// Export metrics
	ExportAttemptsTotal  *prometheus.CounterVec
	ExportRetryQueueSize prometheus.Gauge

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsafe_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldsafe_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldsafe_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldsafe_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Inspection workflow metrics
		InspectionsSubmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsafe_inspections_submitted_total",
				Help: "Total number of submitted inspections",
			},
			[]string{"inspection_type"},
		),
		InspectionsReviewedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsafe_inspections_reviewed_total",
				Help: "Total number of reviewed inspections",
			},
			[]string{"inspection_type", "decision"},
		),
		ReviewerAssignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsafe_reviewer_assignments_total",
				Help: "Total number of reviewer auto-assignments",
			},
			[]string{"outcome"},
		),
		PendingReviewGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldsafe_inspections_pending_review",
				Help: "Number of inspections currently pending review",
			},
		),

		// Notification metrics
		NotificationDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsafe_notification_dispatch_total",
				Help: "Total number of push dispatch attempts",
			},
			[]string{"event_type", "status"},
		),
		NotificationFilteredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsafe_notification_filtered_total",
				Help: "Total number of recipients filtered before dispatch",
			},
			[]string{"reason"},
		),
		PushSubscriptionsActiveGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldsafe_push_subscriptions_active",
				Help: "Number of active push subscriptions",
			},
		),

		// Export metrics
		ExportAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsafe_export_attempts_total",
				Help: "Total number of document export attempts",
			},
			[]string{"status"},
		),
		ExportRetryQueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldsafe_export_retry_queue_size",
				Help: "Number of inspections awaiting export retry",
			},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsafe_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsafe_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldsafe_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldsafe_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.InspectionsSubmittedTotal,
		m.InspectionsReviewedTotal,
		m.ReviewerAssignmentsTotal,
		m.PendingReviewGauge,
		m.NotificationDispatchTotal,
		m.NotificationFilteredTotal,
		m.PushSubscriptionsActiveGauge,
		m.ExportAttemptsTotal,
		m.ExportRetryQueueSize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
