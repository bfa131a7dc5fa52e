package preload

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"thumbnail-engine/internal/cache"
	"thumbnail-engine/internal/decoder"
	"thumbnail-engine/internal/directory"
	"thumbnail-engine/internal/generation"
)

const testTimeout = 5 * time.Second

// recordingPool wraps a real pool and remembers every submitted path.
type recordingPool struct {
	*generation.Pool

	mu        sync.Mutex
	submitted []string
}

func (r *recordingPool) Submit(req generation.Request, onDone func(generation.Result)) generation.Handle {
	r.mu.Lock()
	r.submitted = append(r.submitted, req.Path)
	r.mu.Unlock()
	return r.Pool.Submit(req, onDone)
}

// take returns and clears the recorded paths.
func (r *recordingPool) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.submitted
	r.submitted = nil
	return out
}

// gatedDecoder produces a bitmap once its gate is open.
type gatedDecoder struct {
	gate chan struct{}
}

func (d gatedDecoder) Decode(ctx context.Context, path string, size int) (decoder.Bitmap, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return decoder.Bitmap{}, ctx.Err()
		}
	}
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return decoder.Bitmap{Image: img, SourceFormat: "png", SourceWidth: size, SourceHeight: size}, nil
}

// sinkRecorder collects delivered results.
type sinkRecorder struct {
	mu      sync.Mutex
	results []generation.Result
	notify  chan struct{}
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{notify: make(chan struct{}, 10000)}
}

func (s *sinkRecorder) sink(r generation.Result) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
	s.notify <- struct{}{}
}

func (s *sinkRecorder) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		s.mu.Lock()
		got := len(s.results)
		s.mu.Unlock()
		if got >= n {
			return
		}
		select {
		case <-s.notify:
		case <-deadline:
			t.Fatalf("received %d results, want %d", got, n)
		}
	}
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func writeImages(t *testing.T, n int) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("img%02d.png", i))
		if err := os.WriteFile(paths[i], []byte(paths[i]), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir, paths
}

// listing returns paths as directory entries in order, with the size and
// modification time of the files that exist.
func listing(paths []string) []directory.Entry {
	entries := make([]directory.Entry, len(paths))
	for i, p := range paths {
		entries[i] = directory.Entry{Path: p, Name: filepath.Base(p), Ordinal: i}
		if info, err := os.Stat(p); err == nil {
			entries[i].Size = info.Size()
			entries[i].ModTime = info.ModTime()
		}
	}
	return entries
}

func newRecordingPool(t *testing.T, store cache.Store, dec decoder.Decoder, workers int) *recordingPool {
	t.Helper()
	p, err := generation.New(generation.Options{Store: store, Decoder: dec, Workers: workers})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Close)
	return &recordingPool{Pool: p}
}

func sorted(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	a, b = sorted(a), sorted(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Ten images, dynamic mode with two visible entries on each side: entries
// 2..6 around index 4, then 5..9 around index 7, where 5 and 6 are already
// delivered and not requested again.
func TestSchedulerDynamicScroll(t *testing.T) {
	dir, paths := writeImages(t, 10)
	pool := newRecordingPool(t, nil, gatedDecoder{}, 2)
	rec := newSinkRecorder()
	s := NewScheduler(Options{Pool: pool, Size: 80, Sink: rec.sink})
	policy := Policy{Mode: ModeDynamic, Window: 2, Cap: 400}

	sum := s.Update(dir, listing(paths), 4, policy)
	if sum.Submitted != 5 {
		t.Errorf("first update submitted %d, want 5", sum.Submitted)
	}
	if got := pool.take(); !equalSets(got, paths[2:7]) {
		t.Errorf("first update requested %v, want %v", got, paths[2:7])
	}
	rec.waitFor(t, 5)

	sum = s.Update(dir, listing(paths), 7, policy)
	if got := pool.take(); !equalSets(got, paths[7:10]) {
		t.Errorf("scroll requested %v, want %v", got, paths[7:10])
	}
	if sum.Skipped != 2 {
		t.Errorf("scroll skipped %d already delivered entries, want 2", sum.Skipped)
	}
	rec.waitFor(t, 8)
}

func TestSchedulerNormalRequestsEverything(t *testing.T) {
	dir, paths := writeImages(t, 10)
	pool := newRecordingPool(t, nil, gatedDecoder{gate: make(chan struct{})}, 1)
	s := NewScheduler(Options{Pool: pool, Size: 80})

	s.Update(dir, listing(paths), 4, Policy{Mode: ModeNormal, Window: 2, Cap: 400})
	if got := pool.take(); !equalSets(got, paths) {
		t.Errorf("normal mode requested %d entries, want all 10", len(got))
	}

	// Moving within the directory submits nothing new.
	sum := s.Update(dir, listing(paths), 8, Policy{Mode: ModeNormal, Window: 2, Cap: 400})
	if got := pool.take(); len(got) != 0 {
		t.Errorf("second update requested %v", got)
	}
	if sum.Submitted != 0 || sum.Cancelled != 0 {
		t.Errorf("second update = %+v", sum)
	}
}

func TestSchedulerFullDirectory(t *testing.T) {
	paths := make([]string, 5000)
	for i := range paths {
		paths[i] = fmt.Sprintf("/missing/img%04d.jpg", i)
	}
	pool := newRecordingPool(t, nil, gatedDecoder{gate: make(chan struct{})}, 1)
	s := NewScheduler(Options{Pool: pool, Size: 80})

	sum := s.Update("/missing", listing(paths), 0, Policy{Mode: ModeNormal, Cap: 400, FullDirectory: true})
	if sum.Submitted != 5000 {
		t.Errorf("submitted %d, want 5000", sum.Submitted)
	}
	if got := pool.take(); len(got) != 5000 {
		t.Errorf("pool received %d requests, want 5000", len(got))
	}
}

func TestSchedulerReprioritizesQueued(t *testing.T) {
	dir, paths := writeImages(t, 10)
	pool := newRecordingPool(t, nil, gatedDecoder{gate: make(chan struct{})}, 1)
	s := NewScheduler(Options{Pool: pool, Size: 80})
	policy := Policy{Mode: ModeSmart, Window: 1, Cap: 400}

	s.Update(dir, listing(paths), 2, policy)
	pool.take()

	// Entry 8 moves from background into the visible window.
	sum := s.Update(dir, listing(paths), 8, policy)
	if sum.Submitted != 0 {
		t.Errorf("submitted %d duplicates", sum.Submitted)
	}
	if sum.Reprioritized == 0 {
		t.Errorf("no queued request was re-prioritised: %+v", sum)
	}
	if got := pool.take(); len(got) != 0 {
		t.Errorf("re-submitted %v", got)
	}
}

func TestSchedulerCancelsOutOfPlan(t *testing.T) {
	dir, paths := writeImages(t, 10)
	pool := newRecordingPool(t, nil, gatedDecoder{gate: make(chan struct{})}, 1)
	s := NewScheduler(Options{Pool: pool, Size: 80})
	policy := Policy{Mode: ModeDynamic, Window: 1}

	s.Update(dir, listing(paths), 1, policy)
	if s.InFlight() != 3 {
		t.Fatalf("InFlight() = %d, want 3", s.InFlight())
	}

	sum := s.Update(dir, listing(paths), 8, policy)
	if sum.Cancelled != 3 {
		t.Errorf("cancelled %d, want 3", sum.Cancelled)
	}
	if s.InFlight() != 3 {
		t.Errorf("InFlight() = %d, want 3", s.InFlight())
	}
}

func TestSchedulerDirectoryChangeStartsOver(t *testing.T) {
	dirA, pathsA := writeImages(t, 4)
	dirB, pathsB := writeImages(t, 4)
	pool := newRecordingPool(t, nil, gatedDecoder{gate: make(chan struct{})}, 1)
	s := NewScheduler(Options{Pool: pool, Size: 80})
	policy := Policy{Mode: ModeNormal}

	s.Update(dirA, listing(pathsA), 0, policy)
	epoch := s.Epoch()

	sum := s.Update(dirB, listing(pathsB), 0, policy)
	if sum.Cancelled != 4 || sum.Submitted != 4 {
		t.Errorf("directory change = %+v, want 4 cancelled and 4 submitted", sum)
	}
	if s.Epoch() <= epoch {
		t.Error("epoch did not advance on directory change")
	}
}

func TestSchedulerInterruptAndReload(t *testing.T) {
	dir, paths := writeImages(t, 6)
	store, err := cache.NewFileStore(filepath.Join(t.TempDir(), "thumbnails"))
	if err != nil {
		t.Fatal(err)
	}
	dec := gatedDecoder{gate: make(chan struct{})}
	pool := newRecordingPool(t, store, dec, 2)
	rec := newSinkRecorder()
	s := NewScheduler(Options{Pool: pool, Size: 64, Sink: rec.sink})
	policy := Policy{Mode: ModeNormal}

	s.Update(dir, listing(paths), 0, policy)
	pool.take()

	sum := s.Interrupt()
	if sum.Cancelled != 6 {
		t.Errorf("Interrupt() cancelled %d, want 6", sum.Cancelled)
	}
	if s.InFlight() != 0 {
		t.Errorf("InFlight() after interrupt = %d", s.InFlight())
	}

	epoch := s.Epoch()
	sum = s.Reload()
	if sum.Submitted != 6 {
		t.Errorf("Reload() submitted %d, want 6", sum.Submitted)
	}
	if s.Epoch() != epoch+1 {
		t.Errorf("epoch = %d, want %d", s.Epoch(), epoch+1)
	}

	close(dec.gate)
	rec.waitFor(t, 6)

	rec.mu.Lock()
	for _, r := range rec.results {
		if r.Request.Epoch != s.Epoch() {
			t.Errorf("result from stale epoch %d delivered", r.Request.Epoch)
		}
		if !r.OK() {
			t.Errorf("%s: %v (%v)", r.Request.Path, r.Status, r.Err)
		}
	}
	rec.mu.Unlock()

	// Everything in the cache is complete and decodable.
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 6 {
		t.Errorf("cache entries = %d, want 6", stats.Entries)
	}
	entries, err := os.ReadDir(filepath.Join(store.Root(), "normal"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(store.Root(), "normal", e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := decoder.DecodeBytes(data); err != nil {
			t.Errorf("cache file %s is not a complete image: %v", e.Name(), err)
		}
	}
}

func TestSchedulerDropsCancelledResults(t *testing.T) {
	dir, paths := writeImages(t, 3)
	pool := newRecordingPool(t, nil, gatedDecoder{gate: make(chan struct{})}, 1)
	rec := newSinkRecorder()
	s := NewScheduler(Options{Pool: pool, Size: 80, Sink: rec.sink})

	s.Update(dir, listing(paths), 0, Policy{Mode: ModeNormal})
	s.Interrupt()

	time.Sleep(50 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Errorf("sink received %d cancelled results", n)
	}
	if s.Completed() != 0 {
		t.Errorf("Completed() = %d, want 0", s.Completed())
	}
}

func TestSchedulerResubmitsChangedEntries(t *testing.T) {
	dir, paths := writeImages(t, 3)
	pool := newRecordingPool(t, nil, gatedDecoder{}, 1)
	rec := newSinkRecorder()
	s := NewScheduler(Options{Pool: pool, Size: 80, Sink: rec.sink})
	policy := Policy{Mode: ModeNormal}

	s.Update(dir, listing(paths), 0, policy)
	rec.waitFor(t, 3)
	pool.take()

	sum := s.Update(dir, listing(paths), 0, policy)
	if sum.Submitted != 0 || sum.Skipped != 3 {
		t.Errorf("unchanged directory = %+v, want 3 skipped", sum)
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(paths[1], later, later); err != nil {
		t.Fatal(err)
	}
	sum = s.Update(dir, listing(paths), 0, policy)
	if sum.Submitted != 1 || sum.Skipped != 2 {
		t.Errorf("after change = %+v, want 1 submitted and 2 skipped", sum)
	}
	if got := pool.take(); len(got) != 1 || got[0] != paths[1] {
		t.Errorf("resubmitted %v, want %s", got, paths[1])
	}
	rec.waitFor(t, 4)
}

func TestSchedulerReplacesQueuedChangedEntry(t *testing.T) {
	dir, paths := writeImages(t, 2)
	pool := newRecordingPool(t, nil, gatedDecoder{gate: make(chan struct{})}, 1)
	s := NewScheduler(Options{Pool: pool, Size: 80})
	policy := Policy{Mode: ModeNormal}

	s.Update(dir, listing(paths), 0, policy)
	pool.take()

	entries := listing(paths)
	entries[1].Size++
	sum := s.Update(dir, entries, 0, policy)
	if sum.Cancelled != 1 || sum.Submitted != 1 {
		t.Errorf("changed queued entry = %+v, want 1 cancelled and 1 submitted", sum)
	}
	if s.InFlight() != 2 {
		t.Errorf("InFlight() = %d, want 2", s.InFlight())
	}
}
