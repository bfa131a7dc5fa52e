package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv is the environment variable that overrides automatic sizing.
const OverrideEnv = "THUMBS_WORKERS"

// MaxDecodeWorkers caps the decode pool. Each worker may hold a full-size
// decoded image in memory.
const MaxDecodeWorkers = 16

// Count returns the optimal number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 1.5 for mixed tasks
//
// The limit parameter caps the worker count. Use 0 for no limit.
//
// Can be overridden with the THUMBS_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// ForDecode returns the generation pool size. A positive configured value
// wins (capped at MaxDecodeWorkers); otherwise thumbnail generation is sized
// as a mixed workload (read, decode, encode, write).
func ForDecode(configured int) int {
	if configured > 0 {
		return min(configured, MaxDecodeWorkers)
	}
	return ForMixed(MaxDecodeWorkers)
}
