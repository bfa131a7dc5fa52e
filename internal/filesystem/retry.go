package filesystem

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/metrics"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for network filesystems
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// IsTransient reports whether err is a filesystem error worth retrying:
// a stale NFS file handle (ESTALE) or an interrupted system call (EINTR).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE || errno == syscall.EINTR
	}

	return false
}

func (c RetryConfig) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialBackoff
	b.MaxInterval = c.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.MaxRetries, 0))), ctx)
}

// do runs op, retrying transient failures with exponential backoff.
// Any other error is returned immediately.
func do[T any](ctx context.Context, name, path string, config RetryConfig, op func() (T, error)) (T, error) {
	start := time.Now()
	defer func() {
		metrics.FilesystemOperationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	attempt := 0
	var result T
	err := backoff.RetryNotify(func() error {
		v, err := op()
		if err == nil {
			result = v
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		metrics.FilesystemStaleErrors.WithLabelValues(name).Inc()
		return err
	}, config.policy(ctx), func(err error, wait time.Duration) {
		attempt++
		metrics.FilesystemRetryAttempts.WithLabelValues(name).Inc()
		logging.Debug("Filesystem %s transient error for %s, retrying in %v (attempt %d/%d): %v",
			name, path, wait, attempt, config.MaxRetries, err)
	})

	if err != nil {
		if IsTransient(err) {
			logging.Warn("Filesystem %s failed after %d retries for %s: %v", name, attempt, path, err)
			metrics.FilesystemRetryFailures.WithLabelValues(name).Inc()
		}
		var zero T
		return zero, err
	}
	if attempt > 0 {
		logging.Info("Filesystem %s succeeded on retry %d for %s", name, attempt, path)
	}
	return result, nil
}

// StatWithRetry performs os.Stat, retrying transient errors
func StatWithRetry(ctx context.Context, path string, config RetryConfig) (os.FileInfo, error) {
	return do(ctx, "stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open, retrying transient errors
func OpenWithRetry(ctx context.Context, path string, config RetryConfig) (*os.File, error) {
	return do(ctx, "open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}

// Stat is StatWithRetry with the default configuration
func Stat(ctx context.Context, path string) (os.FileInfo, error) {
	return StatWithRetry(ctx, path, DefaultRetryConfig())
}

// Open is OpenWithRetry with the default configuration
func Open(ctx context.Context, path string) (*os.File, error) {
	return OpenWithRetry(ctx, path, DefaultRetryConfig())
}
