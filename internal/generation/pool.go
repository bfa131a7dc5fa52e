package generation

import (
	"context"
	"errors"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"thumbnail-engine/internal/cache"
	"thumbnail-engine/internal/decoder"
	"thumbnail-engine/internal/fingerprint"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/memory"
	"thumbnail-engine/internal/metrics"
	"thumbnail-engine/internal/workers"
)

// DefaultFailureMemo is the number of remembered decode failures.
const DefaultFailureMemo = 1024

// throttleInterval is how often a worker holding back background requests
// checks memory again.
const throttleInterval = 250 * time.Millisecond

// Options configures a Pool.
type Options struct {
	// Store persists thumbnails. Nil disables caching.
	Store cache.Store
	// Decoder produces thumbnails from source files. Required.
	Decoder decoder.Decoder
	// Filename renders file-name-only thumbnails. Defaults to decoder.NewFilename(1).
	Filename      decoder.Decoder
	Fingerprinter *fingerprint.Fingerprinter
	// Workers is the number of concurrent jobs; 0 sizes from GOMAXPROCS.
	Workers int
	// Monitor pauses decoding under memory pressure. Optional.
	Monitor     *memory.Monitor
	FailureMemo int
}

type jobState int

const (
	stateQueued jobState = iota
	stateRunning
	stateDone
)

type job struct {
	req    Request
	onDone func(Result)
	item   *workers.Item[*job]
	ctx    context.Context
	cancel context.CancelFunc
	state  jobState
}

// Handle refers to a submitted request. The zero Handle is valid and refers
// to nothing.
type Handle struct {
	j *job
}

// Pool runs thumbnail requests on a bounded set of workers in priority
// order. Duplicate in-flight requests for the same file version and size
// share one decode.
type Pool struct {
	store         cache.Store
	decoder       decoder.Decoder
	filename      decoder.Decoder
	fingerprinter *fingerprint.Fingerprinter
	monitor       *memory.Monitor
	failures      *lru.Cache[string, error]
	group         singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	queue   workers.Queue[*job]
	running map[*job]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// New starts a pool with its workers.
func New(opts Options) (*Pool, error) {
	if opts.Decoder == nil {
		return nil, errors.New("generation: decoder is required")
	}
	if opts.Filename == nil {
		opts.Filename = decoder.NewFilename(1)
	}
	if opts.Fingerprinter == nil {
		opts.Fingerprinter = fingerprint.New(false)
	}
	if opts.FailureMemo <= 0 {
		opts.FailureMemo = DefaultFailureMemo
	}
	failures, err := lru.New[string, error](opts.FailureMemo)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		store:         opts.Store,
		decoder:       opts.Decoder,
		filename:      opts.Filename,
		fingerprinter: opts.Fingerprinter,
		monitor:       opts.Monitor,
		failures:      failures,
		ctx:           ctx,
		cancel:        cancel,
		running:       make(map[*job]struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	n := workers.ForDecode(opts.Workers)
	logging.Info("Starting thumbnail generation pool with %d workers", n)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p, nil
}

// Submit queues req and returns immediately. onDone is called exactly once
// with the terminal result. It runs on a worker goroutine, or on the
// goroutine calling Cancel, CancelAll or Close for requests cancelled
// while queued, so it must not block or call back into the pool while
// holding locks the caller of those methods holds.
func (p *Pool) Submit(req Request, onDone func(Result)) Handle {
	ctx, cancel := context.WithCancel(p.ctx)
	j := &job{req: req, onDone: onDone, ctx: ctx, cancel: cancel}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.complete(j, Result{Request: req, Status: StatusCancelled, Err: ErrClosed})
		return Handle{j: j}
	}
	j.item = p.queue.Push(j, int(req.Priority))
	p.updateGaugesLocked()
	p.cond.Signal()
	p.mu.Unlock()

	return Handle{j: j}
}

// Cancel cancels the request. A queued request is removed and reported as
// cancelled immediately; a running one finishes its decode, skips storing
// if it has not stored yet, and is reported as cancelled.
func (p *Pool) Cancel(h Handle) {
	if h.j == nil {
		return
	}
	j := h.j

	p.mu.Lock()
	switch j.state {
	case stateQueued:
		p.queue.Remove(j.item)
		p.updateGaugesLocked()
		p.mu.Unlock()
		p.complete(j, Result{Request: j.req, Status: StatusCancelled, Err: ErrCancelled})
	case stateRunning:
		p.mu.Unlock()
		j.cancel()
	default:
		p.mu.Unlock()
	}
}

// CancelAll cancels every queued and running request.
func (p *Pool) CancelAll() {
	p.mu.Lock()
	queued := p.queue.Drain()
	running := make([]*job, 0, len(p.running))
	for j := range p.running {
		running = append(running, j)
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, j := range running {
		j.cancel()
	}
	for _, it := range queued {
		p.complete(it.Value, Result{Request: it.Value.req, Status: StatusCancelled, Err: ErrCancelled})
	}
}

// Reprioritize changes the priority of a queued request. It reports false
// when the request is no longer queued.
func (p *Pool) Reprioritize(h Handle, prio Priority) bool {
	if h.j == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return h.j.state == stateQueued && p.queue.Fix(h.j.item, int(prio))
}

// Pending returns the number of queued requests.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Running returns the number of requests being processed.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// ForgetFailures clears the remembered decode failures so failed files are
// tried again.
func (p *Pool) ForgetFailures() {
	p.failures.Purge()
}

// Close cancels all requests and waits for the workers to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	queued := p.queue.Drain()
	p.updateGaugesLocked()
	p.cond.Broadcast()
	p.mu.Unlock()

	p.cancel()
	for _, it := range queued {
		p.complete(it.Value, Result{Request: it.Value.req, Status: StatusCancelled, Err: ErrClosed})
	}
	p.wg.Wait()
	logging.Debug("Thumbnail generation pool stopped")
}

func (p *Pool) updateGaugesLocked() {
	metrics.GenerationQueueDepth.Set(float64(p.queue.Len()))
	metrics.GenerationRunning.Set(float64(len(p.running)))
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		if p.throttledLocked() {
			p.mu.Unlock()
			p.waitThrottle()
			continue
		}
		j := p.queue.Pop().Value
		j.state = stateRunning
		p.running[j] = struct{}{}
		p.updateGaugesLocked()
		p.mu.Unlock()

		p.complete(j, p.run(j))
	}
}

// throttledLocked reports whether only background requests are queued while
// memory is above the high water mark. Those stay queued until memory drops.
func (p *Pool) throttledLocked() bool {
	top := p.queue.Peek()
	return top != nil && top.Priority <= int(PriorityBackground) && p.monitor.ShouldThrottle()
}

func (p *Pool) waitThrottle() {
	metrics.GenerationThrottled.Inc()
	t := time.NewTimer(throttleInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.ctx.Done():
	}
}

// complete moves j to its terminal state and delivers res. Later calls for
// the same job are ignored.
func (p *Pool) complete(j *job, res Result) {
	p.mu.Lock()
	if j.state == stateDone {
		p.mu.Unlock()
		return
	}
	j.state = stateDone
	delete(p.running, j)
	p.updateGaugesLocked()
	p.mu.Unlock()

	j.cancel()
	metrics.GenerationsTotal.WithLabelValues(res.Status.String()).Inc()
	if j.onDone != nil {
		j.onDone(res)
	}
}

func cancelled(req Request, err error) Result {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || err == nil {
		err = ErrCancelled
	}
	return Result{Request: req, Status: StatusCancelled, Err: err}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// outcome is the shared product of one decode. It is stored at most once,
// by the leading caller or, if that one was cancelled, by the first caller
// sharing it.
type outcome struct {
	entry    *cache.Entry
	bmp      decoder.Bitmap
	store    sync.Once
	storeErr error
}

func (o *outcome) persist(p *Pool, fp fingerprint.Fingerprint, size int) error {
	o.store.Do(func() {
		o.storeErr = p.persist(fp, size, o.bmp)
	})
	return o.storeErr
}

func (p *Pool) run(j *job) Result {
	req := j.req
	ctx := j.ctx
	if ctx.Err() != nil {
		return cancelled(req, ctx.Err())
	}

	if req.FilenameOnly {
		bmp, err := p.filename.Decode(ctx, req.Path, req.Size)
		if err != nil {
			if isContextErr(err) {
				return cancelled(req, err)
			}
			return Result{Request: req, Status: StatusFailed, Err: err}
		}
		return delivered(req, fingerprint.Fingerprint{Path: req.Path}, bmp, nil)
	}

	fp, err := p.fingerprinter.Compute(ctx, req.Path)
	if err != nil {
		if isContextErr(err) {
			return cancelled(req, err)
		}
		logging.Debug("Cannot fingerprint %s: %v", req.Path, err)
		return Result{Request: req, Status: StatusFailed, Err: err}
	}

	renderSize := req.Size
	if p.store != nil {
		renderSize = cache.StoreSize(p.store, req.Size)
	}
	key := fp.Key() + "\x00" + strconv.Itoa(renderSize)
	if memoErr, ok := p.failures.Get(key); ok {
		metrics.GenerationFailureMemoHits.Inc()
		return Result{Request: req, Status: StatusFailed, Fingerprint: fp, Err: memoErr}
	}

	if entry, err := p.lookup(ctx, fp, req.Size); err != nil {
		return cancelled(req, err)
	} else if entry != nil {
		return cacheHit(req, entry)
	}

	if !p.monitor.WaitIfPaused(ctx) && ctx.Err() != nil {
		return cancelled(req, ctx.Err())
	}

	v, err, shared := p.group.Do(key, func() (any, error) {
		return p.generate(ctx, fp, renderSize, key)
	})
	if shared {
		metrics.GenerationDeduplicated.Inc()
	}
	if err != nil {
		if isContextErr(err) {
			return cancelled(req, err)
		}
		return Result{Request: req, Status: StatusFailed, Fingerprint: fp, Err: err}
	}

	if ctx.Err() != nil {
		return cancelled(req, ctx.Err())
	}

	out := v.(*outcome)
	if out.entry != nil {
		return cacheHit(req, out.entry)
	}
	return delivered(req, fp, out.bmp, out.persist(p, fp, renderSize))
}

// lookup returns the cached entry, nil on a miss, or a context error.
// Backend failures count as misses.
func (p *Pool) lookup(ctx context.Context, fp fingerprint.Fingerprint, size int) (*cache.Entry, error) {
	if p.store == nil {
		return nil, nil
	}
	start := time.Now()
	entry, err := p.store.Lookup(ctx, fp, size)
	metrics.GenerationPhaseDuration.WithLabelValues("lookup").Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		return entry, nil
	case isContextErr(err):
		return nil, err
	case !errors.Is(err, cache.ErrMiss):
		logging.Debug("Cache lookup for %s failed, regenerating: %v", fp.Path, err)
	}
	return nil, nil
}

// generate runs once per in-flight key. Decoding uses the pool context so a
// cancelled caller does not abort a decode other callers share; the store is
// skipped when the leading caller was cancelled before it.
func (p *Pool) generate(leader context.Context, fp fingerprint.Fingerprint, size int, key string) (*outcome, error) {
	// Another flight may have finished between our lookup and now.
	if entry, err := p.lookup(p.ctx, fp, size); err != nil {
		return nil, err
	} else if entry != nil {
		return &outcome{entry: entry}, nil
	}

	start := time.Now()
	bmp, err := p.decoder.Decode(p.ctx, fp.Path, size)
	metrics.GenerationPhaseDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
	if err != nil {
		if decoder.IsDecodeError(err) || errors.Is(err, decoder.ErrUnsupported) {
			p.failures.Add(key, err)
			logging.Debug("Decode failed for %s: %v", fp.Path, err)
		}
		return nil, err
	}
	metrics.DecodeByFormat.WithLabelValues(bmp.SourceFormat).Inc()

	out := &outcome{bmp: bmp}
	if leader.Err() == nil {
		out.persist(p, fp, size)
	}
	return out, nil
}

// persist stores bmp. Failures are logged and returned; the thumbnail is
// still delivered.
func (p *Pool) persist(fp fingerprint.Fingerprint, size int, bmp decoder.Bitmap) error {
	if p.store == nil {
		return nil
	}
	start := time.Now()
	err := p.store.Store(p.ctx, fp, size, bmp)
	metrics.GenerationPhaseDuration.WithLabelValues("store").Observe(time.Since(start).Seconds())
	if err != nil {
		logging.Warn("Thumbnail for %s delivered without caching: %v", fp.Path, err)
	}
	return err
}

func cacheHit(req Request, e *cache.Entry) Result {
	if max(e.Width, e.Height) > req.Size {
		// Stored larger than asked, at its size class
		if img, _, err := decoder.DecodeBytes(e.Payload); err == nil {
			img = fit(img, req.Size)
			return Result{
				Request:     req,
				Status:      StatusCacheHit,
				Fingerprint: e.Fingerprint,
				Image:       img,
				Width:       img.Bounds().Dx(),
				Height:      img.Bounds().Dy(),
			}
		}
	}
	return Result{
		Request:     req,
		Status:      StatusCacheHit,
		Fingerprint: e.Fingerprint,
		Payload:     e.Payload,
		Format:      e.Format,
		Width:       e.Width,
		Height:      e.Height,
	}
}

func delivered(req Request, fp fingerprint.Fingerprint, bmp decoder.Bitmap, storeErr error) Result {
	bmp.Image = fit(bmp.Image, req.Size)
	return Result{
		Request:     req,
		Status:      StatusDelivered,
		Fingerprint: fp,
		Image:       bmp.Image,
		Width:       bmp.Width(),
		Height:      bmp.Height(),
		StoreErr:    storeErr,
	}
}

// fit scales img down to fit within size x size.
func fit(img image.Image, size int) image.Image {
	if img == nil || size <= 0 {
		return img
	}
	b := img.Bounds()
	if max(b.Dx(), b.Dy()) <= size {
		return img
	}
	return imaging.Fit(img, size, size, imaging.Lanczos)
}
