// Package metrics provides Prometheus instrumentation for the thumbnail engine.
//
// All metrics are prefixed with "thumbnail_engine_" and are registered with the
// default registry through promauto. Expose them by mounting promhttp.Handler():
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// # Metric Categories
//
//   - HTTP: request totals, durations and in-flight requests
//   - Database: query totals and durations by operation, SQLite file sizes
//   - Cache: hits, misses, invalidations and backend errors per backend
//   - Generation: terminal states, phase durations, queue depth, running jobs
//   - Scheduler: plans per mode, issued requests per priority, cancellations
//   - Maintenance: clean runs and removed entries, erasures
//   - Filesystem: retries of transient stat/open failures
//   - Memory: GOMEMLIMIT, usage ratio and backpressure pauses
//
// # Collector
//
// [Collector] periodically asks a [StatsProvider] for cache statistics and
// updates the entry and size gauges:
//
//	collector := metrics.NewCollector(provider, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Cache hit rate:
//
//	sum(rate(thumbnail_engine_cache_hits_total[5m])) /
//	(sum(rate(thumbnail_engine_cache_hits_total[5m])) + sum(rate(thumbnail_engine_cache_misses_total[5m])))
//
// P95 decode time:
//
//	histogram_quantile(0.95, sum(rate(thumbnail_engine_generation_phase_duration_seconds_bucket{phase="decode"}[5m])) by (le))
package metrics
