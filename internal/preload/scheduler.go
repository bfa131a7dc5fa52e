package preload

import (
	"sync"
	"time"

	"thumbnail-engine/internal/directory"
	"thumbnail-engine/internal/generation"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/metrics"
)

// Submitter is the part of the generation pool the scheduler drives.
type Submitter interface {
	Submit(req generation.Request, onDone func(generation.Result)) generation.Handle
	Cancel(h generation.Handle)
	Reprioritize(h generation.Handle, prio generation.Priority) bool
}

// Options configures a Scheduler.
type Options struct {
	Pool Submitter
	// Size is the thumbnail size requested for every entry.
	Size         int
	FilenameOnly bool
	// Sink receives delivered and failed results of the current epoch.
	// Cancelled and out-of-date results are dropped. It is called from pool
	// goroutines and must not block.
	Sink func(generation.Result)
}

// Summary describes what one Update did.
type Summary struct {
	Epoch         uint64 `json:"epoch"`
	Planned       int    `json:"planned"`
	Submitted     int    `json:"submitted"`
	Reprioritized int    `json:"reprioritized"`
	Cancelled     int    `json:"cancelled"`
	Skipped       int    `json:"skipped"`
}

// version identifies the listed state of a file. A changed version makes a
// completed entry due again.
type version struct {
	size    int64
	modTime time.Time
}

func versionOf(e directory.Entry) version {
	return version{size: e.Size, modTime: e.ModTime}
}

type pending struct {
	path      string
	version   version
	priority  generation.Priority
	handle    generation.Handle
	submitted bool
	cancelled bool
}

// Scheduler keeps the generation pool busy with the plan for the active
// directory. It remembers which entries were already completed or are in
// flight so navigation never submits duplicates.
type Scheduler struct {
	pool         Submitter
	size         int
	filenameOnly bool
	sink         func(generation.Result)

	mu        sync.Mutex
	dir       string
	entries   []directory.Entry
	active    int
	policy    Policy
	epoch     uint64
	inflight  map[string]*pending
	completed map[string]version
}

// NewScheduler returns an idle scheduler.
func NewScheduler(opts Options) *Scheduler {
	return &Scheduler{
		pool:         opts.Pool,
		size:         opts.Size,
		filenameOnly: opts.FilenameOnly,
		sink:         opts.Sink,
		epoch:        1,
		inflight:     make(map[string]*pending),
		completed:    make(map[string]version),
	}
}

// Epoch returns the current epoch. It increases on reload and directory change.
func (s *Scheduler) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// InFlight returns the number of requests submitted and not yet finished.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Completed returns the number of entries finished in the current epoch.
func (s *Scheduler) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

// work is collected under the lock and carried out after releasing it,
// because the pool may call result callbacks synchronously.
type work struct {
	cancel   []*pending
	reprio   []*pending
	submit   []*pending
	epoch    uint64
	summary  Summary
	reasons  map[string]int
	planMode Mode
}

// Update plans entries (the listing of dir) around active and brings the
// pool in line with the plan: queued requests outside it are cancelled,
// queued ones inside it are re-prioritised and missing ones are submitted.
// Entries whose size or modification time differ from the completed version
// are submitted again. A different dir than the previous call starts over.
func (s *Scheduler) Update(dir string, entries []directory.Entry, active int, policy Policy) Summary {
	s.mu.Lock()
	w := &work{reasons: make(map[string]int)}
	if dir != s.dir {
		if s.dir != "" {
			logging.Debug("Preload: directory changed from %s to %s", s.dir, dir)
		}
		s.resetLocked(w, "directory_change")
		s.dir = dir
	}
	s.entries = entries
	s.active = active
	s.policy = policy
	s.planLocked(w)
	s.mu.Unlock()

	return s.apply(w)
}

// Reload forgets which entries were completed, cancels outstanding work and
// plans the current directory again. Cached thumbnails are kept; they come
// back as cache hits.
func (s *Scheduler) Reload() Summary {
	s.mu.Lock()
	w := &work{reasons: make(map[string]int)}
	s.resetLocked(w, "reload")
	if s.dir != "" {
		s.planLocked(w)
	}
	s.mu.Unlock()

	logging.Info("Preload: reload requested")
	return s.apply(w)
}

// Interrupt cancels every outstanding request. Completed entries stay
// completed; the next Update submits whatever is still missing.
func (s *Scheduler) Interrupt() Summary {
	s.mu.Lock()
	w := &work{reasons: make(map[string]int), epoch: s.epoch}
	for path, p := range s.inflight {
		w.cancel = append(w.cancel, p)
		w.reasons["interrupt"]++
		delete(s.inflight, path)
	}
	s.mu.Unlock()

	if n := len(w.cancel); n > 0 {
		logging.Info("Preload: interrupted %d outstanding requests", n)
	}
	return s.apply(w)
}

// resetLocked cancels everything and starts a new epoch.
func (s *Scheduler) resetLocked(w *work, reason string) {
	for _, p := range s.inflight {
		w.cancel = append(w.cancel, p)
		w.reasons[reason]++
	}
	s.inflight = make(map[string]*pending)
	s.completed = make(map[string]version)
	s.epoch++
}

func (s *Scheduler) planLocked(w *work) {
	targets := Plan(directory.Paths(s.entries), s.active, s.policy)
	w.epoch = s.epoch
	w.planMode = s.policy.Mode
	w.summary.Planned = len(targets)

	wanted := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		wanted[t.Path] = struct{}{}
	}

	for path, p := range s.inflight {
		if _, ok := wanted[path]; !ok {
			w.cancel = append(w.cancel, p)
			w.reasons["out_of_plan"]++
			delete(s.inflight, path)
		}
	}

	for _, t := range targets {
		v := versionOf(s.entries[t.Index])
		if done, ok := s.completed[t.Path]; ok {
			if done == v {
				w.summary.Skipped++
				continue
			}
			delete(s.completed, t.Path)
		}
		if p, ok := s.inflight[t.Path]; ok && p.version != v {
			w.cancel = append(w.cancel, p)
			w.reasons["source_changed"]++
			delete(s.inflight, t.Path)
		}
		if p, ok := s.inflight[t.Path]; ok {
			if p.priority != t.Priority {
				p.priority = t.Priority
				w.reprio = append(w.reprio, p)
			} else {
				w.summary.Skipped++
			}
			continue
		}
		p := &pending{path: t.Path, version: v, priority: t.Priority}
		s.inflight[t.Path] = p
		w.submit = append(w.submit, p)
	}
}

func (s *Scheduler) apply(w *work) Summary {
	if w.planMode != "" {
		metrics.SchedulerPlansTotal.WithLabelValues(string(w.planMode)).Inc()
	}
	for reason, n := range w.reasons {
		metrics.SchedulerCancellations.WithLabelValues(reason).Add(float64(n))
	}

	for _, p := range w.cancel {
		s.cancel(p)
	}
	w.summary.Cancelled = len(w.cancel)

	for _, p := range w.reprio {
		s.mu.Lock()
		h, prio := p.handle, p.priority
		s.mu.Unlock()
		if s.pool.Reprioritize(h, prio) {
			w.summary.Reprioritized++
		} else {
			w.summary.Skipped++
		}
	}

	for _, p := range w.submit {
		req := generation.Request{
			Path:         p.path,
			Size:         s.size,
			Priority:     p.priority,
			Epoch:        w.epoch,
			FilenameOnly: s.filenameOnly,
		}
		h := s.pool.Submit(req, s.onDone(p, w.epoch))
		metrics.SchedulerRequestsIssued.WithLabelValues(p.priority.String()).Inc()

		s.mu.Lock()
		p.handle = h
		p.submitted = true
		cancelNow := p.cancelled
		s.mu.Unlock()
		if cancelNow {
			s.pool.Cancel(h)
		}
	}
	w.summary.Submitted = len(w.submit)
	w.summary.Epoch = w.epoch
	return w.summary
}

// cancel cancels p, or marks it so the pending submit cancels it.
func (s *Scheduler) cancel(p *pending) {
	s.mu.Lock()
	p.cancelled = true
	h, ok := p.handle, p.submitted
	s.mu.Unlock()
	if ok {
		s.pool.Cancel(h)
	}
}

func (s *Scheduler) onDone(p *pending, epoch uint64) func(generation.Result) {
	return func(res generation.Result) {
		s.mu.Lock()
		current := epoch == s.epoch
		if s.inflight[p.path] == p {
			delete(s.inflight, p.path)
		}
		if current && !p.cancelled && res.Status != generation.StatusCancelled {
			s.completed[p.path] = p.version
		}
		s.mu.Unlock()

		if !current || res.Status == generation.StatusCancelled || s.sink == nil {
			return
		}
		s.sink(res)
	}
}
