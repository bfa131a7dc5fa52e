package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/metrics"
)

const (
	// DefaultMemoryRatio is the share of the memory limit given to the Go heap.
	// The rest is left for libvips, decoder buffers and goroutine stacks.
	DefaultMemoryRatio = 0.85
)

// ConfigResult holds the result of memory configuration
type ConfigResult struct {
	// Configured indicates whether GOMEMLIMIT was set
	Configured bool

	// Source indicates where the configuration came from
	Source string // "GOMEMLIMIT", "config", "MEMORY_LIMIT", or "none"

	// ContainerLimit is the total memory limit in bytes (0 if not set)
	ContainerLimit int64

	// GoMemLimit is the configured GOMEMLIMIT in bytes (0 if not set)
	GoMemLimit int64

	// Ratio is the memory ratio used (0 if not applicable)
	Ratio float64
}

// Configure sets GOMEMLIMIT from a total memory limit in bytes and the share
// of it reserved for the Go heap. Call this early, before the decode pool
// starts.
//
// Precedence:
//   - GOMEMLIMIT environment variable (standard Go runtime setting)
//   - limit argument (from configuration)
//   - MEMORY_LIMIT environment variable (Kubernetes Downward API)
//
// A ratio outside (0, 1] falls back to DefaultMemoryRatio.
func Configure(limit int64, ratio float64) ConfigResult {
	result := ConfigResult{}

	if goMemLimitEnv := os.Getenv("GOMEMLIMIT"); goMemLimitEnv != "" {
		if current := debug.SetMemoryLimit(-1); current > 0 && current < math.MaxInt64 {
			result.Configured = true
			result.Source = "GOMEMLIMIT"
			result.GoMemLimit = current
			metrics.GoMemLimit.Set(float64(current))
		}
		logging.Info("GOMEMLIMIT set via environment: %s", goMemLimitEnv)
		return result
	}

	source := "config"
	if limit <= 0 {
		memLimitStr := os.Getenv("MEMORY_LIMIT")
		if memLimitStr == "" {
			logging.Debug("No memory limit configured, GOMEMLIMIT will not be set")
			result.Source = "none"
			return result
		}

		parsed, err := strconv.ParseInt(memLimitStr, 10, 64)
		if err != nil || parsed <= 0 {
			logging.Warn("Failed to parse MEMORY_LIMIT %q, GOMEMLIMIT will not be set", memLimitStr)
			result.Source = "none"
			return result
		}
		limit = parsed
		source = "MEMORY_LIMIT"
	}

	if ratio <= 0 || ratio > 1.0 {
		if ratio != 0 {
			logging.Warn("Memory ratio %.2f out of range (0.0-1.0), using default %.2f", ratio, DefaultMemoryRatio)
		}
		ratio = DefaultMemoryRatio
	}

	goMemLimit := int64(float64(limit) * ratio)
	debug.SetMemoryLimit(goMemLimit)
	metrics.GoMemLimit.Set(float64(goMemLimit))

	result.Configured = true
	result.Source = source
	result.ContainerLimit = limit
	result.GoMemLimit = goMemLimit
	result.Ratio = ratio

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s limit)",
		FormatBytes(goMemLimit),
		ratio*100,
		FormatBytes(limit),
	)

	return result
}

// FormatBytes formats bytes into human-readable string
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
