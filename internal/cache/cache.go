package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"thumbnail-engine/internal/decoder"
	"thumbnail-engine/internal/fingerprint"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/metrics"
)

// ErrMiss is returned by Lookup when no valid entry exists.
var ErrMiss = errors.New("cache miss")

// Entry is a stored thumbnail. Entries are immutable once returned.
type Entry struct {
	Fingerprint fingerprint.Fingerprint
	Size        int    // requested thumbnail size the entry satisfies
	Width       int    // actual pixel dimensions of Payload
	Height      int    //
	Format      string // "png" or "jpeg"
	Payload     []byte
	Ref         string // file backend: path of the thumbnail file
	CreatedAt   time.Time
}

// Stats describes the contents of a store.
type Stats struct {
	Backend  string `json:"backend"`
	Location string `json:"location"`
	Entries  int64  `json:"entries"`
	Bytes    int64  `json:"bytes"`
}

// CleanStats reports the outcome of a clean pass.
type CleanStats struct {
	Scanned int `json:"scanned"`
	Removed int `json:"removed"`
	Errors  int `json:"errors"`
}

// Store is a persistent mapping from (fingerprint, size) to thumbnails.
// Implementations are safe for concurrent use.
type Store interface {
	// Lookup returns the entry for fp at size, or ErrMiss. An entry made
	// from a different version of the file is discarded and reported as a miss.
	Lookup(ctx context.Context, fp fingerprint.Fingerprint, size int) (*Entry, error)

	// Store persists bmp for fp at size. Storing an identical fingerprint and
	// size again is a no-op; storing a changed fingerprint replaces every
	// entry of the old version.
	Store(ctx context.Context, fp fingerprint.Fingerprint, size int, bmp decoder.Bitmap) error

	// Remove deletes every entry for the source path.
	Remove(ctx context.Context, path string) error

	// Clean removes entries whose source no longer exists or has changed.
	Clean(ctx context.Context) (CleanStats, error)

	// EraseAll removes every entry.
	EraseAll(ctx context.Context) error

	Stats(ctx context.Context) (Stats, error)
	Name() string
	Close() error
}

// SizeClasser is implemented by stores that keep thumbnails in fixed size
// classes. StoreSize returns the size to render for a request of size.
type SizeClasser interface {
	StoreSize(size int) int
}

// StoreSize returns the size s wants rendered for a request of size.
func StoreSize(s Store, size int) int {
	if c, ok := s.(SizeClasser); ok {
		return c.StoreSize(size)
	}
	return size
}

// BackendError reports an I/O, corruption or capacity failure of a backend.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s cache %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackendError reports whether err came from a failing cache backend.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// backendErr wraps err, counts it and logs it. Context errors pass through
// unwrapped so callers can tell cancellation apart from failure.
func backendErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	metrics.CacheBackendErrors.WithLabelValues(backend, op).Inc()
	logging.Warn("%s cache %s failed: %v", backend, op, err)
	return &BackendError{Backend: backend, Op: op, Err: err}
}

func recordHit(backend string) {
	metrics.CacheHits.WithLabelValues(backend).Inc()
}

func recordMiss(backend string) {
	metrics.CacheMisses.WithLabelValues(backend).Inc()
}

func recordInvalidation(backend string, fp fingerprint.Fingerprint) {
	metrics.CacheInvalidations.WithLabelValues(backend).Inc()
	logging.Debug("%s cache: discarding stale entry for %s", backend, fp.Path)
}

// longest returns the longest edge of a w x h image.
func longest(w, h int) int {
	return max(w, h)
}
