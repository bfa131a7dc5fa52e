package metrics

// Label values shared by the packages that record metrics.
var (
	Backends         = []string{"file", "database", "memory"}
	GenerationStates = []string{"delivered", "cache_hit", "failed", "cancelled"}
	GenerationPhases = []string{"fingerprint", "lookup", "decode", "store"}
	PreloadModes     = []string{"normal", "dynamic", "smart"}
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, backend := range Backends {
		CacheHits.WithLabelValues(backend)
		CacheMisses.WithLabelValues(backend)
		CacheInvalidations.WithLabelValues(backend)
		CacheEntries.WithLabelValues(backend)
		CacheSizeBytes.WithLabelValues(backend)
		for _, op := range []string{"lookup", "store", "remove", "clean", "erase", "stats"} {
			CacheBackendErrors.WithLabelValues(backend, op)
		}
	}

	for _, status := range GenerationStates {
		GenerationsTotal.WithLabelValues(status)
	}
	for _, phase := range GenerationPhases {
		GenerationPhaseDuration.WithLabelValues(phase)
	}

	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp", "tiff", "text", "unknown"} {
		DecodeByFormat.WithLabelValues(format)
	}

	for _, mode := range PreloadModes {
		SchedulerPlansTotal.WithLabelValues(mode)
	}
	for _, prio := range []string{"visible", "normal", "background", "immediate"} {
		SchedulerRequestsIssued.WithLabelValues(prio)
	}
	for _, reason := range []string{"out_of_plan", "interrupt", "reload", "directory_change"} {
		SchedulerCancellations.WithLabelValues(reason)
	}

	for _, status := range []string{"success", "error", "busy"} {
		CleanRunsTotal.WithLabelValues(status)
	}

	for _, typ := range []string{"thumbnail", "interrupt", "reload", "clean"} {
		SSEEventsTotal.WithLabelValues(typ)
	}

	for _, op := range []string{"stat", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
		FilesystemOperationDuration.WithLabelValues(op)
	}

	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"initialize_schema", "lookup", "store", "delete_stale", "remove_path",
		"clean_scan", "clean_delete", "erase", "vacuum", "count", "begin_transaction", "commit", "rollback"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
