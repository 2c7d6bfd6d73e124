package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Run metrics
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	RunQueueDepth prometheus.Gauge
	ActiveRuns    prometheus.Gauge

	// Combination metrics
	CombinationsTotal     *prometheus.CounterVec
	CombinationsGenerated *prometheus.HistogramVec

	// FFmpeg operation metrics
	FFmpegOperationsTotal *prometheus.CounterVec
	FFmpegOperationErrors *prometheus.CounterVec
	FFmpegProcessingTime  *prometheus.HistogramVec

	// WebSocket metrics
	WebSocketConnections   prometheus.Gauge
	WebSocketMessagesTotal *prometheus.CounterVec

	// File storage metrics
	StorageFilesDeleted *prometheus.CounterVec
	WorkspacesActive    prometheus.Gauge
}

// New creates metrics registered with the default Prometheus registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics registered with reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path", "status"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "montage_runs_total",
				Help: "Total number of pipeline runs by outcome",
			},
			[]string{"mode", "status"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "montage_run_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"mode", "status"},
		),
		RunQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "montage_run_queue_depth",
				Help: "Current number of queued runs",
			},
		),
		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "montage_active_runs",
				Help: "Number of runs currently rendering",
			},
		),

		CombinationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "montage_combinations_total",
				Help: "Total number of rendered combinations by outcome",
			},
			[]string{"status"},
		),
		CombinationsGenerated: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "montage_combinations_generated",
				Help:    "Distinct combinations found per run",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 30, 50, 100},
			},
			[]string{"mode"},
		),

		FFmpegOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ffmpeg_operations_total",
				Help: "Total number of FFmpeg operations",
			},
			[]string{"operation", "status"},
		),
		FFmpegOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ffmpeg_operation_errors_total",
				Help: "Total number of FFmpeg operation errors",
			},
			[]string{"operation", "error_type"},
		),
		FFmpegProcessingTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ffmpeg_processing_time_seconds",
				Help:    "FFmpeg processing time in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"operation"},
		),

		WebSocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "websocket_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WebSocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websocket_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"type"},
		),

		StorageFilesDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_files_deleted_total",
				Help: "Total number of expired files removed from storage",
			},
			[]string{"zone"},
		),
		WorkspacesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspaces_active",
				Help: "Number of per-run workspaces currently on disk",
			},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, responseSize int64) {
	status := statusCodeToString(statusCode)

	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	if responseSize > 0 {
		m.HTTPResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))
	}
}

// RecordRunQueued records an enqueued asynchronous run
func (m *Metrics) RecordRunQueued() {
	m.RunQueueDepth.Inc()
}

// RecordRunDequeued records a queued run leaving the queue
func (m *Metrics) RecordRunDequeued() {
	m.RunQueueDepth.Dec()
}

// RecordRunStarted records a run that began rendering
func (m *Metrics) RecordRunStarted() {
	m.ActiveRuns.Inc()
}

// RecordRunCompleted records the end of a run with its per-combination counts
func (m *Metrics) RecordRunCompleted(mode, status string, generated, succeeded, failed int, duration time.Duration) {
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(mode, status).Inc()
	m.RunDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
	m.CombinationsGenerated.WithLabelValues(mode).Observe(float64(generated))
	m.CombinationsTotal.WithLabelValues("success").Add(float64(succeeded))
	m.CombinationsTotal.WithLabelValues("failure").Add(float64(failed))
}

// RecordFFmpegOperation records FFmpeg operation
func (m *Metrics) RecordFFmpegOperation(operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}

	m.FFmpegOperationsTotal.WithLabelValues(operation, status).Inc()
	m.FFmpegProcessingTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFFmpegError records FFmpeg error
func (m *Metrics) RecordFFmpegError(operation string, errorType string) {
	m.FFmpegOperationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordWebSocketConnection records WebSocket connection change
func (m *Metrics) RecordWebSocketConnection(connected bool) {
	if connected {
		m.WebSocketConnections.Inc()
	} else {
		m.WebSocketConnections.Dec()
	}
}

// RecordWebSocketMessage records WebSocket message
func (m *Metrics) RecordWebSocketMessage(messageType string) {
	m.WebSocketMessagesTotal.WithLabelValues(messageType).Inc()
}

// RecordFilesDeleted records expired files removed from a storage zone
func (m *Metrics) RecordFilesDeleted(zone string, count int) {
	m.StorageFilesDeleted.WithLabelValues(zone).Add(float64(count))
}

// RecordWorkspace records a workspace being created or reclaimed
func (m *Metrics) RecordWorkspace(created bool) {
	if created {
		m.WorkspacesActive.Inc()
	} else {
		m.WorkspacesActive.Dec()
	}
}

// statusCodeToString converts HTTP status code to category string
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
