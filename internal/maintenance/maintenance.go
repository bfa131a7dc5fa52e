package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"thumbnail-engine/internal/cache"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/metrics"
)

// ErrBusy is returned when a clean or erase is already running.
var ErrBusy = errors.New("cache maintenance already running")

// Result describes one clean pass.
type Result struct {
	Scanned  int           `json:"scanned"`
	Removed  int           `json:"removed"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Report is the size/count summary shown to the user.
type Report struct {
	Backend  string    `json:"backend"`
	Location string    `json:"location"`
	Entries  int64     `json:"entries"`
	Bytes    int64     `json:"bytes"`
	LastRun  time.Time `json:"lastClean,omitzero"`
	Running  bool      `json:"cleaning"`
}

// Maintainer cleans, erases and reports on a cache store. At most one clean
// or erase runs at a time.
type Maintainer struct {
	store   cache.Store
	running atomic.Bool
	lastRun atomic.Int64 // unix nanos
}

// New returns a Maintainer for store.
func New(store cache.Store) *Maintainer {
	return &Maintainer{store: store}
}

// Running reports whether a clean or erase is in progress.
func (m *Maintainer) Running() bool {
	return m.running.Load()
}

// Clean removes entries whose source is gone or changed. Lookups and stores
// continue while it runs.
func (m *Maintainer) Clean(ctx context.Context) (Result, error) {
	if !m.running.CompareAndSwap(false, true) {
		metrics.CleanRunsTotal.WithLabelValues("busy").Inc()
		return Result{}, ErrBusy
	}
	defer m.running.Store(false)
	return m.clean(ctx)
}

func (m *Maintainer) clean(ctx context.Context) (Result, error) {
	logging.Info("Cleaning %s thumbnail cache", m.store.Name())
	start := time.Now()

	stats, err := m.store.Clean(ctx)
	res := Result{
		Scanned:  stats.Scanned,
		Removed:  stats.Removed,
		Errors:   stats.Errors,
		Duration: time.Since(start),
		Err:      err,
	}

	metrics.CleanLastDuration.Set(res.Duration.Seconds())
	metrics.CleanLastTimestamp.Set(float64(time.Now().Unix()))
	metrics.CleanRemovedTotal.Add(float64(res.Removed))
	m.lastRun.Store(time.Now().UnixNano())

	if err != nil {
		metrics.CleanRunsTotal.WithLabelValues("error").Inc()
		logging.Warn("Cache clean stopped after %v: %d removed, %d errors: %v", res.Duration, res.Removed, res.Errors, err)
		return res, err
	}

	metrics.CleanRunsTotal.WithLabelValues("success").Inc()
	logging.Info("Cache clean finished in %v: scanned %d, removed %d, errors %d",
		res.Duration, res.Scanned, res.Removed, res.Errors)
	return res, nil
}

// CleanAsync starts a clean in the background. The channel receives the
// result and is closed; a clean already in progress yields ErrBusy.
func (m *Maintainer) CleanAsync(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	if !m.running.CompareAndSwap(false, true) {
		metrics.CleanRunsTotal.WithLabelValues("busy").Inc()
		ch <- Result{Err: ErrBusy}
		close(ch)
		return ch
	}

	go func() {
		defer close(ch)
		defer m.running.Store(false)
		res, _ := m.clean(ctx)
		ch <- res
	}()
	return ch
}

// EraseAll removes every cache entry. Callers must confirm with the user
// first; there is no undo.
func (m *Maintainer) EraseAll(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer m.running.Store(false)

	logging.Warn("Erasing all thumbnails from the %s cache", m.store.Name())
	if err := m.store.EraseAll(ctx); err != nil {
		return err
	}
	metrics.EraseTotal.Inc()
	return nil
}

// Report returns the cache size and entry count.
func (m *Maintainer) Report(ctx context.Context) (Report, error) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return Report{}, err
	}

	metrics.CacheEntries.WithLabelValues(stats.Backend).Set(float64(stats.Entries))
	metrics.CacheSizeBytes.WithLabelValues(stats.Backend).Set(float64(stats.Bytes))

	r := Report{
		Backend:  stats.Backend,
		Location: stats.Location,
		Entries:  stats.Entries,
		Bytes:    stats.Bytes,
		Running:  m.Running(),
	}
	if ns := m.lastRun.Load(); ns > 0 {
		r.LastRun = time.Unix(0, ns)
	}
	return r, nil
}
