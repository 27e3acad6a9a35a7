// Package metrics provides Prometheus metrics for the kudos progression service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// storeLatencyBuckets are in milliseconds; store calls are usually sub-ms.
var storeLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250} //nolint:gochecknoglobals // bucket layout

// Manager manages all Prometheus metrics for the kudos service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Progression Metrics
	pointsAwarded   prometheus.Counter
	pointsRedeemed  prometheus.Counter
	levelUps        prometheus.Counter
	badgeLevelUps   *prometheus.CounterVec
	badgesAwarded   *prometheus.CounterVec
	badgesExpired   prometheus.Counter
	streakActivity  prometheus.Counter
	streakResets    prometheus.Counter
	engineErrors    *prometheus.CounterVec
	totalAccounts   prometheus.Gauge

	// Event Ingestion Metrics
	eventsProcessed *prometheus.CounterVec
	eventsDuplicate prometheus.Counter
	eventsFailed    *prometheus.CounterVec

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Store Metrics
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "kudos",
		subsystem:        "progression",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) counter(n, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(n, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(n, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Progression Metrics - what the engine is for
	m.pointsAwarded = m.counter("points_awarded_total", "Total points credited to accounts")
	m.pointsRedeemed = m.counter("points_redeemed_total", "Total points redeemed from accounts")
	m.levelUps = m.counter("level_ups_total", "Total account level increases")
	m.badgeLevelUps = m.counterVec("badge_level_ups_total", "Badge tier advances by badge type", "badge_type")
	m.badgesAwarded = m.counterVec("badges_awarded_total", "Badges created by award calls by badge type", "badge_type")
	m.badgesExpired = m.counter("badges_expired_total", "Badges removed by the expiry sweep")
	m.streakActivity = m.counter("streak_activities_total", "Qualifying goal activities recorded")
	m.streakResets = m.counter("streak_resets_total", "Streaks broken and restarted at 1")
	m.engineErrors = m.counterVec("engine_errors_total", "Engine operation failures by operation and kind", "operation", "kind")
	m.totalAccounts = m.gauge("accounts", "Number of points accounts")

	// Event Ingestion Metrics
	m.eventsProcessed = m.counterVec("events_processed_total", "Events applied by workers by kind", "kind")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Events rejected as duplicates")
	m.eventsFailed = m.counterVec("events_failed_total", "Events that failed to apply by kind", "kind")

	// Queue Metrics
	m.queueSize = m.gauge("queue_size", "Current size of the event queue (backlog indicator)")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the event queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Events enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Events dequeued")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Enqueue failures by reason", "reason")

	// Worker Metrics
	m.workerCount = m.gauge("worker_count", "Current number of event workers")
	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("worker_processing_latency_milliseconds"),
		Help:        "Time to apply one event in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	// Store Metrics
	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("store_operation_latency_milliseconds"),
		Help:        "Record store operation latency in milliseconds",
		Buckets:     storeLatencyBuckets,
		ConstLabels: m.customLabels,
	}, []string{"backend", "operation"})
	m.storeErrors = m.counterVec("store_errors_total", "Record store failures by backend and operation", "backend", "operation")

	// HTTP Metrics
	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpErrors = m.counterVec("http_errors_total", "HTTP error responses by endpoint and type", "endpoint", "method", "error_type")

	// System Metrics
	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// Progression recording functions.

// RecordPointsAwarded adds amount to the awarded points counter.
func RecordPointsAwarded(amount int64) {
	if globalManager.enabled && amount > 0 {
		globalManager.pointsAwarded.Add(float64(amount))
	}
}

// RecordPointsRedeemed adds amount to the redeemed points counter.
func RecordPointsRedeemed(amount int64) {
	if globalManager.enabled && amount > 0 {
		globalManager.pointsRedeemed.Add(float64(amount))
	}
}

// RecordLevelUps counts account level increases.
func RecordLevelUps(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.levelUps.Add(float64(n))
	}
}

// RecordBadgeLevelUps counts tier advances for a badge type.
func RecordBadgeLevelUps(badgeType string, n int) {
	if globalManager.enabled && n > 0 {
		globalManager.badgeLevelUps.WithLabelValues(badgeType).Add(float64(n))
	}
}

// RecordBadgeAwarded counts a newly created badge.
func RecordBadgeAwarded(badgeType string) {
	if globalManager.enabled {
		globalManager.badgesAwarded.WithLabelValues(badgeType).Inc()
	}
}

// RecordBadgesExpired counts badges removed by a sweep.
func RecordBadgesExpired(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.badgesExpired.Add(float64(n))
	}
}

// RecordStreakActivity counts a recorded goal activity.
func RecordStreakActivity() {
	if globalManager.enabled {
		globalManager.streakActivity.Inc()
	}
}

// RecordStreakReset counts a broken streak.
func RecordStreakReset() {
	if globalManager.enabled {
		globalManager.streakResets.Inc()
	}
}

// RecordEngineError counts a failed engine operation.
func RecordEngineError(operation, kind string) {
	if globalManager.enabled {
		globalManager.engineErrors.WithLabelValues(operation, kind).Inc()
	}
}

// UpdateTotalAccounts sets the number of points accounts.
func UpdateTotalAccounts(count int) {
	if globalManager.enabled {
		globalManager.totalAccounts.Set(float64(count))
	}
}

// Event ingestion recording functions.

// RecordEventProcessed counts an applied event.
func RecordEventProcessed(kind string) {
	if globalManager.enabled {
		globalManager.eventsProcessed.WithLabelValues(kind).Inc()
	}
}

// RecordEventDuplicate counts a duplicate event.
func RecordEventDuplicate() {
	if globalManager.enabled {
		globalManager.eventsDuplicate.Inc()
	}
}

// RecordEventFailed counts an event that could not be applied.
func RecordEventFailed(kind string) {
	if globalManager.enabled {
		globalManager.eventsFailed.WithLabelValues(kind).Inc()
	}
}

// Queue recording functions.

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if globalManager.enabled {
		globalManager.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue counts an enqueued event.
func RecordQueueEnqueue() {
	if globalManager.enabled {
		globalManager.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue counts a dequeued event.
func RecordQueueDequeue() {
	if globalManager.enabled {
		globalManager.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	if globalManager.enabled {
		globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
	}
}

// Worker recording functions.

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	if globalManager.enabled {
		globalManager.workerCount.Set(float64(count))
	}
}

// RecordWorkerProcessingLatency observes the time to apply one event.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// Store recording functions.

// RecordStoreOperation observes a store call.
func RecordStoreOperation(backend, operation string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.storeLatency.WithLabelValues(backend, operation).Observe(latencyMs)
	}
}

// RecordStoreError counts a store failure.
func RecordStoreError(backend, operation string) {
	if globalManager.enabled {
		globalManager.storeErrors.WithLabelValues(backend, operation).Inc()
	}
}

// HTTP recording functions.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordHTTPError counts an HTTP error response.
func RecordHTTPError(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// System recording functions.

// UpdateSystemMemoryUsage sets heap bytes in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// SetEnabled toggles recording on the global manager.
func SetEnabled(enabled bool) {
	globalManager.enabled = enabled
}

// GetRegistry returns the custom registry used for metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
