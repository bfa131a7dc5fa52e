package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnail_engine_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnail_engine_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Cache metrics
var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_cache_hits_total",
			Help: "Total number of thumbnail cache hits",
		},
		[]string{"backend"}, // "file", "database", "memory"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_cache_misses_total",
			Help: "Total number of thumbnail cache misses",
		},
		[]string{"backend"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_cache_invalidations_total",
			Help: "Entries discarded because the source fingerprint changed",
		},
		[]string{"backend"},
	)

	CacheBackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_cache_backend_errors_total",
			Help: "Total number of cache backend errors by operation",
		},
		[]string{"backend", "operation"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_cache_entries",
			Help: "Number of entries in the thumbnail cache",
		},
		[]string{"backend"},
	)

	CacheSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_cache_size_bytes",
			Help: "Size of the thumbnail cache in bytes",
		},
		[]string{"backend"},
	)
)

// Generation metrics
var (
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_generations_total",
			Help: "Total number of finished generation requests by terminal status",
		},
		[]string{"status"}, // "delivered", "cache_hit", "failed", "cancelled"
	)

	GenerationPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnail_engine_generation_phase_duration_seconds",
			Help:    "Time spent in each generation phase",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"phase"}, // "fingerprint", "lookup", "decode", "store"
	)

	GenerationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_generation_queue_depth",
			Help: "Number of generation requests waiting for a worker",
		},
	)

	GenerationRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_generation_running",
			Help: "Number of generation requests currently being processed",
		},
	)

	GenerationDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_generation_deduplicated_total",
			Help: "Requests that shared an in-flight decode of the same key",
		},
	)

	GenerationThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_generation_throttled_total",
			Help: "Times workers held back background requests under memory pressure",
		},
	)

	GenerationFailureMemoHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_generation_failure_memo_hits_total",
			Help: "Requests answered from the remembered decode failures",
		},
	)

	DecodeByFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_decode_by_format_total",
			Help: "Decoded source images by format",
		},
		[]string{"format"},
	)
)

// Scheduler metrics
var (
	SchedulerPlansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_scheduler_plans_total",
			Help: "Total number of preload plans computed by mode",
		},
		[]string{"mode"},
	)

	SchedulerRequestsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_scheduler_requests_issued_total",
			Help: "Generation requests issued by the scheduler by priority",
		},
		[]string{"priority"},
	)

	SchedulerCancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_scheduler_cancellations_total",
			Help: "Generation requests cancelled by the scheduler by reason",
		},
		[]string{"reason"}, // "out_of_plan", "interrupt", "reload", "directory_change"
	)
)

// Maintenance metrics
var (
	CleanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_clean_runs_total",
			Help: "Total number of cache clean runs by status",
		},
		[]string{"status"},
	)

	CleanRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_clean_removed_total",
			Help: "Total number of obsolete entries removed by cache cleaning",
		},
	)

	CleanLastDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_clean_last_duration_seconds",
			Help: "Duration of the last cache clean run",
		},
	)

	CleanLastTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_clean_last_timestamp",
			Help: "Unix timestamp of the last cache clean run",
		},
	)

	EraseTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_cache_erase_total",
			Help: "Total number of full cache erasures",
		},
	)
)

// Event stream metrics
var (
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_sse_connections_active",
			Help: "Number of connected event stream subscribers",
		},
	)

	SSEEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_sse_events_total",
			Help: "Events published to stream subscribers by type",
		},
		[]string{"type"},
	)

	SSEEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_sse_events_dropped_total",
			Help: "Events dropped for slow stream subscribers",
		},
	)
)

// Filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_filesystem_retry_attempts_total",
			Help: "Retries of filesystem operations after transient errors",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_filesystem_retry_failures_total",
			Help: "Filesystem operations that still failed after retrying",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_filesystem_stale_errors_total",
			Help: "Transient filesystem errors (ESTALE, EINTR) observed",
		},
		[]string{"operation"},
	)

	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnail_engine_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations including retries",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_go_memlimit_bytes",
			Help: "Configured GOMEMLIMIT in bytes",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_memory_paused",
			Help: "Whether generation is paused due to memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_engine_memory_gc_pauses_total",
			Help: "Times generation was paused for memory pressure",
		},
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnail_engine_app_info",
			Help: "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
