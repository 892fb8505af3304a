package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics for the OCR job pipeline.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    prometheus.CounterVec
	HTTPRequestDuration  prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPResponseSize     prometheus.HistogramVec

	// Job/page-job pipeline metrics
	QueueDepth          prometheus.Gauge
	PagesProcessedTotal prometheus.CounterVec
	PageProcessingTime  prometheus.HistogramVec
	JobsCompletedTotal  prometheus.CounterVec

	// Worker pool metrics
	ActiveWorkers prometheus.Gauge

	// Backend adapter metrics
	BackendCallDuration   prometheus.HistogramVec
	BackendRetriesTotal   prometheus.CounterVec
	BackendCharsExtracted prometheus.CounterVec

	// Result cache metrics
	CacheHitRatio prometheus.Gauge
}

// New creates a new metrics instance
func New(namespace, subsystem string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		HTTPResponseSize: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "endpoint"},
		),

		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "queue_depth",
				Help:      "Current number of page jobs waiting to be claimed",
			},
		),

		PagesProcessedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pages_processed_total",
				Help:      "Total number of page jobs processed, by outcome",
			},
			[]string{"status"},
		),

		PageProcessingTime: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "page_processing_duration_seconds",
				Help:      "Duration of a single page job from claim to result, in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"status"},
		),

		JobsCompletedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jobs_completed_total",
				Help:      "Total number of parent jobs reaching a terminal status",
			},
			[]string{"status"},
		),

		ActiveWorkers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_workers",
				Help:      "Current number of workers actively processing a page job",
			},
		),

		BackendCallDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "backend_call_duration_seconds",
				Help:      "Duration of a single backend adapter call, including retries",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"backend"},
		),

		BackendRetriesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "backend_retries_total",
				Help:      "Total number of backend adapter retry attempts",
			},
			[]string{"backend"},
		),

		BackendCharsExtracted: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "backend_characters_extracted_total",
				Help:      "Total number of characters extracted by the backend adapter",
			},
			[]string{"backend"},
		),

		CacheHitRatio: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "result_cache_hit_ratio",
				Help:      "Result cache hit ratio (0-1)",
			},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordPageProcessed records the outcome of a single page job.
func (m *Metrics) RecordPageProcessed(status string, duration time.Duration) {
	m.PagesProcessedTotal.WithLabelValues(status).Inc()
	m.PageProcessingTime.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordJobCompleted records a parent job reaching a terminal status.
func (m *Metrics) RecordJobCompleted(status string) {
	m.JobsCompletedTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth sets the current page-job queue depth.
func (m *Metrics) SetQueueDepth(depth float64) {
	m.QueueDepth.Set(depth)
}

// SetActiveWorkers sets the number of workers currently processing a page.
func (m *Metrics) SetActiveWorkers(count float64) {
	m.ActiveWorkers.Set(count)
}

// RecordBackendCall records a completed backend adapter call, including how
// many retries it took.
func (m *Metrics) RecordBackendCall(backend string, duration time.Duration, retries int, charsExtracted int) {
	m.BackendCallDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if retries > 0 {
		m.BackendRetriesTotal.WithLabelValues(backend).Add(float64(retries))
	}
	m.BackendCharsExtracted.WithLabelValues(backend).Add(float64(charsExtracted))
}

// SetCacheHitRatio sets the result cache hit ratio.
func (m *Metrics) SetCacheHitRatio(ratio float64) {
	m.CacheHitRatio.Set(ratio)
}

// Global metrics instance
var globalMetrics *Metrics

func Init(namespace, subsystem string) {
	globalMetrics = New(namespace, subsystem)
}

func Get() *Metrics {
	if globalMetrics == nil {
		globalMetrics = New("ocr_job_service", "pipeline")
	}
	return globalMetrics
}
