// Package memory controls Go's runtime memory usage and provides backpressure
// for the thumbnail generation pool.
//
// # Overview
//
// Decoding a large photo briefly needs far more memory than the thumbnail it
// produces, and the pool decodes several at once. Go does not derive
// GOMEMLIMIT from cgroup limits, so it is set explicitly from configuration:
//
//	memory.Configure(cfg.MemoryLimit, cfg.MemoryRatio)
//
// Precedence: GOMEMLIMIT env, then the configured limit, then MEMORY_LIMIT
// env (Kubernetes Downward API). The ratio (default 0.85) reserves the rest
// for libvips and other non-heap allocations.
//
// # Backpressure
//
// [Monitor] samples the heap periodically. Above CriticalWaterMark it pauses
// generation, and it resumes once usage drops below HighWaterMark:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	if !monitor.WaitIfPaused(ctx) {
//	    return // cancelled or shutting down
//	}
//
// A nil *Monitor never blocks, which keeps tests and library use simple.
package memory
