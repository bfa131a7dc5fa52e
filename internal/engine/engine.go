package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"thumbnail-engine/internal/cache"
	"thumbnail-engine/internal/config"
	"thumbnail-engine/internal/decoder"
	"thumbnail-engine/internal/directory"
	"thumbnail-engine/internal/fingerprint"
	"thumbnail-engine/internal/generation"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/maintenance"
	"thumbnail-engine/internal/memory"
	"thumbnail-engine/internal/preload"
)

// ErrDisabled is returned by Thumbnail when thumbnails are turned off.
var ErrDisabled = errors.New("thumbnails are disabled")

// Deps are the collaborators of an Engine. Nil fields are built from the
// configuration and owned (and closed) by the Engine.
type Deps struct {
	Store   cache.Store
	Decoder decoder.Decoder
	Index   directory.Index
	Monitor *memory.Monitor
	// Sink receives every delivered or failed thumbnail of the current
	// preload epoch. It is called from worker goroutines and must not block.
	Sink func(Delivery)
}

// Delivery is one thumbnail handed to the viewer.
type Delivery struct {
	Path    string `json:"path"`
	Ordinal int    `json:"ordinal"`
	Epoch   uint64 `json:"epoch"`
	Size    int    `json:"size"`
	Status  string `json:"status"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	// Placeholder asks the viewer to draw its "unsupported format" image.
	Placeholder bool   `json:"placeholder"`
	Error       string `json:"error,omitempty"`

	result generation.Result
}

// Bytes returns the encoded thumbnail and its format ("png" or "jpeg").
func (d Delivery) Bytes() ([]byte, string, error) {
	return d.result.Bytes()
}

// Result returns the underlying generation result.
func (d Delivery) Result() generation.Result {
	return d.result
}

// Batch describes one RequestThumbnails call.
type Batch struct {
	Dir     string            `json:"dir"`
	Entries []directory.Entry `json:"entries"`
	Summary preload.Summary   `json:"summary"`
}

// Status is a snapshot of the generation state.
type Status struct {
	Enabled   bool   `json:"enabled"`
	Dir       string `json:"dir,omitempty"`
	Epoch     uint64 `json:"epoch"`
	Pending   int    `json:"pending"`
	Running   int    `json:"running"`
	InFlight  int    `json:"inFlight"`
	Completed int    `json:"completed"`
	Cleaning  bool   `json:"cleaning"`
}

// Engine is the entry point for the viewer: it lists directories, plans
// preloading, runs generation and maintains the cache.
type Engine struct {
	cfg     *config.Config
	store   cache.Store
	index   directory.Index
	pool    *generation.Pool
	sched   *preload.Scheduler
	maint   *maintenance.Maintainer
	monitor *memory.Monitor
	sink    func(Delivery)

	ownStore   bool
	ownMonitor bool
	ownVips    bool

	mu       sync.RWMutex
	dir      string
	ordinals map[string]int

	closeOnce sync.Once
}

// New builds an Engine from cfg and deps.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		store:    deps.Store,
		index:    deps.Index,
		monitor:  deps.Monitor,
		sink:     deps.Sink,
		ordinals: make(map[string]int),
	}

	if e.store == nil {
		store, err := cache.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s cache: %w", cfg.Backend, err)
		}
		e.store = store
		e.ownStore = true
	}

	dec := deps.Decoder
	if dec == nil {
		dec = e.defaultDecoder()
	}

	if e.index == nil {
		e.index = directory.NewLister(cfg.SortBy, cfg.SortOrder, decoder.IsVipsAvailable())
	}

	if e.monitor == nil {
		e.monitor = memory.NewMonitor(memory.DefaultConfig())
		e.monitor.Start()
		e.ownMonitor = true
	}

	poolStore := e.store
	if cache.IsDisabled(poolStore) {
		poolStore = nil
	}
	pool, err := generation.New(generation.Options{
		Store:         poolStore,
		Decoder:       dec,
		Filename:      decoder.NewFilename(cfg.FilenameFontScale),
		Fingerprinter: fingerprint.New(cfg.DigestFingerprints),
		Workers:       cfg.Workers,
		Monitor:       e.monitor,
		FailureMemo:   cfg.FailureMemoEntries,
	})
	if err != nil {
		_ = e.release()
		return nil, err
	}
	e.pool = pool

	e.sched = preload.NewScheduler(preload.Options{
		Pool:         pool,
		Size:         cfg.ThumbnailSize,
		FilenameOnly: cfg.FilenameOnly,
		Sink:         e.deliver,
	})
	e.maint = maintenance.New(e.store)

	logging.Info("Thumbnail engine ready (backend: %s, size: %dpx, mode: %s, enabled: %v)",
		e.store.Name(), cfg.ThumbnailSize, cfg.PreloadMode, !cfg.DisableThumbnails)
	return e, nil
}

func (e *Engine) defaultDecoder() decoder.Decoder {
	imaging := decoder.NewImaging()
	if e.cfg.Decoder != config.DecoderVips {
		return imaging
	}
	if !decoder.IsVipsAvailable() {
		decoder.InitVips()
		e.ownVips = true
	}
	return decoder.NewVips(imaging)
}

// Config returns the validated configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Store returns the cache store.
func (e *Engine) Store() cache.Store {
	return e.store
}

// Enabled reports whether thumbnails are generated at all.
func (e *Engine) Enabled() bool {
	return !e.cfg.DisableThumbnails
}

// RequestThumbnails lists dir and preloads its thumbnails around the entry
// at index active. An empty mode or a preloadCap <= 0 uses the configured
// value. With thumbnails disabled the listing is returned and nothing is
// requested.
func (e *Engine) RequestThumbnails(ctx context.Context, dir string, active int, mode string, preloadCap int) (Batch, error) {
	entries, err := e.index.List(ctx, dir)
	if err != nil {
		return Batch{}, err
	}

	batch := Batch{Dir: dir, Entries: entries}
	if abs, err := filepath.Abs(dir); err == nil {
		batch.Dir = abs
	}
	if !e.Enabled() {
		return batch, nil
	}

	if mode == "" {
		mode = e.cfg.PreloadMode
	}
	m, err := preload.ParseMode(mode)
	if err != nil {
		return Batch{}, err
	}
	if preloadCap <= 0 {
		preloadCap = e.cfg.PreloadCap
	}

	ordinals := make(map[string]int, len(entries))
	for _, en := range entries {
		ordinals[en.Path] = en.Ordinal
	}
	e.mu.Lock()
	e.dir = batch.Dir
	e.ordinals = ordinals
	e.mu.Unlock()

	policy := preload.Policy{
		Mode:          m,
		Window:        e.cfg.ViewportWindow,
		Cap:           preloadCap,
		FullDirectory: e.cfg.PreloadFullDirectory,
	}
	batch.Summary = e.sched.Update(batch.Dir, entries, active, policy)
	logging.Debug("Requested thumbnails for %s: %+v", batch.Dir, batch.Summary)
	return batch, nil
}

// Thumbnail generates (or loads) one thumbnail ahead of all preloading and
// waits for it. size <= 0 uses the configured size. Cancelling ctx cancels
// the request.
func (e *Engine) Thumbnail(ctx context.Context, path string, size int) (generation.Result, error) {
	if !e.Enabled() {
		return generation.Result{}, ErrDisabled
	}
	if size <= 0 {
		size = e.cfg.ThumbnailSize
	}
	size = config.ClampThumbnailSize(size)

	done := make(chan generation.Result, 1)
	h := e.pool.Submit(generation.Request{
		Path:         path,
		Size:         size,
		Priority:     generation.PriorityImmediate,
		FilenameOnly: e.cfg.FilenameOnly,
	}, func(res generation.Result) { done <- res })

	select {
	case res := <-done:
		return res, res.Err
	case <-ctx.Done():
		e.pool.Cancel(h)
		return generation.Result{}, ctx.Err()
	}
}

// Interrupt stops all outstanding thumbnail creation. Thumbnails already
// delivered stay delivered.
func (e *Engine) Interrupt() preload.Summary {
	sum := e.sched.Interrupt()
	e.pool.CancelAll()
	return sum
}

// Reload forgets delivered entries and remembered decode failures and plans
// the current directory again. Cached thumbnails come back as cache hits.
func (e *Engine) Reload(ctx context.Context) (preload.Summary, error) {
	if err := ctx.Err(); err != nil {
		return preload.Summary{}, err
	}
	e.pool.ForgetFailures()
	if !e.Enabled() {
		return preload.Summary{}, nil
	}
	return e.sched.Reload(), nil
}

// CleanCache removes obsolete cache entries and waits for the result.
func (e *Engine) CleanCache(ctx context.Context) (maintenance.Result, error) {
	return e.maint.Clean(ctx)
}

// CleanCacheAsync starts a clean in the background.
func (e *Engine) CleanCacheAsync(ctx context.Context) <-chan maintenance.Result {
	return e.maint.CleanAsync(ctx)
}

// EraseCache interrupts generation and removes every cache entry.
func (e *Engine) EraseCache(ctx context.Context) error {
	e.Interrupt()
	return e.maint.EraseAll(ctx)
}

// Report returns the cache size and entry count.
func (e *Engine) Report(ctx context.Context) (maintenance.Report, error) {
	return e.maint.Report(ctx)
}

// Status returns a snapshot of the generation state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	dir := e.dir
	e.mu.RUnlock()

	return Status{
		Enabled:   e.Enabled(),
		Dir:       dir,
		Epoch:     e.sched.Epoch(),
		Pending:   e.pool.Pending(),
		Running:   e.pool.Running(),
		InFlight:  e.sched.InFlight(),
		Completed: e.sched.Completed(),
		Cleaning:  e.maint.Running(),
	}
}

// Close cancels all work and releases the resources the Engine owns.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.sched.Interrupt()
		e.pool.Close()
		err = e.release()
		logging.Info("Thumbnail engine stopped")
	})
	return err
}

func (e *Engine) release() error {
	var err error
	if e.ownMonitor && e.monitor != nil {
		e.monitor.Stop()
	}
	if e.ownStore && e.store != nil {
		err = e.store.Close()
	}
	if e.ownVips {
		decoder.ShutdownVips()
	}
	return err
}

func (e *Engine) deliver(res generation.Result) {
	if e.sink == nil {
		return
	}

	e.mu.RLock()
	ordinal, ok := e.ordinals[res.Request.Path]
	e.mu.RUnlock()
	if !ok {
		ordinal = -1
	}

	d := Delivery{
		Path:        res.Request.Path,
		Ordinal:     ordinal,
		Epoch:       res.Request.Epoch,
		Size:        res.Request.Size,
		Status:      res.Status.String(),
		Width:       res.Width,
		Height:      res.Height,
		Placeholder: res.Status == generation.StatusFailed,
		result:      res,
	}
	if res.Err != nil {
		d.Error = res.Err.Error()
	}
	e.sink(d)
}
