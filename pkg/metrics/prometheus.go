// Package metrics provides Prometheus metrics for the arena rating service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the arena service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion Metrics - What enters the system
	comparisonsAccepted  prometheus.Counter
	comparisonsDuplicate prometheus.Counter
	queueSize            prometheus.Gauge
	queueCapacity        prometheus.Gauge
	queueEnqueued        prometheus.Counter
	queueRejected        *prometheus.CounterVec

	// Rating Computation Metrics - Solver performance and quality
	ratingsComputed  prometheus.Counter
	ratingLatency    prometheus.Histogram
	solverIterations prometheus.Histogram
	degradedUpdates  prometheus.Counter
	workerCount      prometheus.Gauge

	// Period Metrics - Batch lifecycle
	periodsProcessed      prometheus.Counter
	periodProcessDuration prometheus.Histogram
	commitRetries         prometheus.Counter
	openPeriodID          prometheus.Gauge
	openPeriodComparisons prometheus.Gauge

	// Population Metrics
	competitorsTotal prometheus.Gauge

	// Projection Metrics - Leaderboard snapshot timings
	projectionRebuilds        prometheus.Counter
	projectionRebuildDuration prometheus.Histogram
	projectionLastRebuildMs   prometheus.Gauge
	projectionLastUnix        prometheus.Gauge

	// Repository Metrics - Durable store performance
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram
	commitDuration          prometheus.Histogram

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "arena",
		subsystem:        "rating",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Ingestion Metrics
	m.comparisonsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "comparisons_accepted_total",
		Help:      "Total number of comparisons accepted into the open period",
	})

	m.comparisonsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "comparisons_duplicate_total",
		Help:      "Total number of duplicate comparison submissions detected",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current size of the ingestion queue (backlog indicator)",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Configured capacity of the ingestion queue",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueued_total",
		Help:      "Total number of submissions enqueued",
	})

	m.queueRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "queue_rejected_total",
			Help:      "Total number of submissions rejected by the queue",
		},
		[]string{"reason"},
	)

	// Rating Computation Metrics
	m.ratingsComputed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ratings_computed_total",
		Help:      "Total number of per-competitor rating updates computed",
	})

	m.ratingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rating_latency_milliseconds",
		Help:      "Histogram of per-competitor rating computation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.solverIterations = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "solver_iterations",
		Help:      "Histogram of volatility solver iterations per rating update",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 100},
	})

	m.degradedUpdates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "degraded_updates_total",
		Help:      "Total number of rating updates flagged degraded (solver did not converge)",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Current number of rating workers (processing capacity)",
	})

	// Period Metrics
	m.periodsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "periods_processed_total",
		Help:      "Total number of rating periods processed and committed",
	})

	m.periodProcessDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "period_process_duration_milliseconds",
		Help:      "End-to-end period processing duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	})

	m.commitRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "commit_retries_total",
		Help:      "Total number of period commit transaction retries",
	})

	m.openPeriodID = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "open_period_id",
		Help:      "Identifier of the currently open rating period",
	})

	m.openPeriodComparisons = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "open_period_comparisons",
		Help:      "Number of comparisons attached to the open period",
	})

	// Population Metrics
	m.competitorsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "competitors_total",
		Help:      "Total number of tracked competitors (business scale)",
	})

	// Projection Metrics
	m.projectionRebuilds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "projection_rebuilds_total",
		Help:      "Total number of leaderboard snapshot publications",
	})

	m.projectionRebuildDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "projection_rebuild_duration_milliseconds",
		Help:      "Histogram of leaderboard snapshot rebuild duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.projectionLastRebuildMs = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "projection_last_rebuild_duration_ms",
		Help:      "Duration of the most recent snapshot rebuild in milliseconds",
	})

	m.projectionLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "projection_last_rebuild_unix",
		Help:      "Unix timestamp of the most recent snapshot rebuild",
	})

	// Repository Metrics
	m.repositoryUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_update_latency_milliseconds",
		Help:      "Histogram of durable store write latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.repositoryQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_query_latency_milliseconds",
		Help:      "Histogram of durable store read latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.commitDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "period_commit_duration_milliseconds",
		Help:      "Histogram of period commit transaction duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds (user experience)",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total errors by component and error type",
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_type_total",
			Help:      "Total errors by error type and severity",
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "Total errors by endpoint, method and error type",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "error_latency_milliseconds",
			Help:      "Latency of requests that ended in an error",
			Buckets:   m.histogramBuckets,
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_bytes",
		Help:      "Current allocated heap memory in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutines",
		Help:      "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_milliseconds",
		Help:      "Histogram of garbage collector pause times in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// RecordComparisonAccepted increments the accepted comparisons counter.
func RecordComparisonAccepted() {
	globalManager.comparisonsAccepted.Inc()
}

// RecordComparisonDuplicate increments the duplicate comparisons counter.
func RecordComparisonDuplicate() {
	globalManager.comparisonsDuplicate.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the configured queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueued increments the enqueued submissions counter.
func RecordQueueEnqueued() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected increments the rejected submissions counter for a reason.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// RecordRatingComputed increments the computed ratings counter.
func RecordRatingComputed() {
	globalManager.ratingsComputed.Inc()
}

// RecordRatingLatency records per-competitor rating computation latency in milliseconds.
func RecordRatingLatency(latencyMs float64) {
	globalManager.ratingLatency.Observe(latencyMs)
}

// RecordSolverIterations records the volatility solver iteration count of one update.
func RecordSolverIterations(iterations int) {
	globalManager.solverIterations.Observe(float64(iterations))
}

// RecordDegradedUpdate increments the degraded updates counter.
func RecordDegradedUpdate() {
	globalManager.degradedUpdates.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// Period Metrics Functions.

// RecordPeriodProcessed increments the processed periods counter.
func RecordPeriodProcessed() {
	globalManager.periodsProcessed.Inc()
}

// RecordPeriodProcessDuration records the end-to-end processing duration of one period.
func RecordPeriodProcessDuration(durationMs float64) {
	globalManager.periodProcessDuration.Observe(durationMs)
}

// RecordCommitRetry increments the commit retry counter.
func RecordCommitRetry() {
	globalManager.commitRetries.Inc()
}

// UpdateOpenPeriodID sets the identifier of the open period.
func UpdateOpenPeriodID(id uint64) {
	globalManager.openPeriodID.Set(float64(id))
}

// UpdateOpenPeriodComparisons sets the comparison count of the open period.
func UpdateOpenPeriodComparisons(count int) {
	globalManager.openPeriodComparisons.Set(float64(count))
}

// UpdateTotalCompetitors sets the total competitor count.
func UpdateTotalCompetitors(count int) {
	globalManager.competitorsTotal.Set(float64(count))
}

// Projection Metrics Functions.

// IncrementProjectionRebuilds increments the snapshot publication counter.
func IncrementProjectionRebuilds() {
	globalManager.projectionRebuilds.Inc()
}

// RecordProjectionRebuildDuration records a snapshot rebuild duration in milliseconds.
func RecordProjectionRebuildDuration(durationMs float64) {
	globalManager.projectionRebuildDuration.Observe(durationMs)
}

// UpdateProjectionLastRebuildMs sets the duration of the most recent snapshot rebuild.
func UpdateProjectionLastRebuildMs(durationMs float64) {
	globalManager.projectionLastRebuildMs.Set(durationMs)
}

// UpdateProjectionLastUnix sets the timestamp of the most recent snapshot rebuild.
func UpdateProjectionLastUnix(unixSeconds float64) {
	globalManager.projectionLastUnix.Set(unixSeconds)
}

// Repository Metrics Functions.

// RecordRepositoryUpdateLatency records durable store write latency in milliseconds.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records durable store read latency in milliseconds.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordCommitDuration records a period commit transaction duration in milliseconds.
func RecordCommitDuration(durationMs float64) {
	globalManager.commitDuration.Observe(durationMs)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error by endpoint, method and type.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of a request that ended in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the current allocated heap memory.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the current goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records a garbage collector pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom registry backing the global manager,
// for exposing metrics over HTTP without the default Go collectors.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
