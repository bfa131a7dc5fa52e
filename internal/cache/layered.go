package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"thumbnail-engine/internal/decoder"
	"thumbnail-engine/internal/fingerprint"
)

const memoryBackend = "memory"

type memKey struct {
	path string
	size int
}

// Layered puts a bounded in-memory LRU of recent hits in front of a
// persistent store. Memory entries are revalidated against the live
// fingerprint on every lookup.
type Layered struct {
	backend Store
	mem     *lru.Cache[memKey, *Entry]

	// gen advances whenever memory is invalidated in bulk. A backend read
	// that started in an older generation is not added to memory.
	mu  sync.RWMutex
	gen uint64
}

// NewLayered wraps backend with an LRU of at most entries items.
func NewLayered(backend Store, entries int) (*Layered, error) {
	mem, err := lru.New[memKey, *Entry](entries)
	if err != nil {
		return nil, err
	}
	return &Layered{backend: backend, mem: mem}, nil
}

// Backend returns the wrapped store.
func (l *Layered) Backend() Store { return l.backend }

// Name implements Store.
func (l *Layered) Name() string { return l.backend.Name() }

// Lookup implements Store.
func (l *Layered) Lookup(ctx context.Context, fp fingerprint.Fingerprint, size int) (*Entry, error) {
	key := memKey{path: fp.Path, size: size}
	if e, ok := l.mem.Get(key); ok {
		if e.Fingerprint.Equal(fp) {
			recordHit(memoryBackend)
			return e, nil
		}
		l.mem.Remove(key)
	}
	recordMiss(memoryBackend)

	l.mu.RLock()
	gen := l.gen
	l.mu.RUnlock()

	e, err := l.backend.Lookup(ctx, fp, size)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	if l.gen == gen {
		l.mem.Add(key, e)
	}
	l.mu.RUnlock()
	return e, nil
}

// invalidate drops all memory entries and fences out backend reads that
// are still in progress.
func (l *Layered) invalidate() {
	l.mu.Lock()
	l.gen++
	l.mem.Purge()
	l.mu.Unlock()
}

// StoreSize implements SizeClasser.
func (l *Layered) StoreSize(size int) int {
	return StoreSize(l.backend, size)
}

// Store implements Store.
func (l *Layered) Store(ctx context.Context, fp fingerprint.Fingerprint, size int, bmp decoder.Bitmap) error {
	l.mem.Remove(memKey{path: fp.Path, size: size})
	return l.backend.Store(ctx, fp, size, bmp)
}

// Remove implements Store.
func (l *Layered) Remove(ctx context.Context, path string) error {
	for _, key := range l.mem.Keys() {
		if key.path == path {
			l.mem.Remove(key)
		}
	}
	return l.backend.Remove(ctx, path)
}

// Clean implements Store.
func (l *Layered) Clean(ctx context.Context) (CleanStats, error) {
	stats, err := l.backend.Clean(ctx)
	if stats.Removed > 0 {
		l.invalidate()
	}
	return stats, err
}

// EraseAll implements Store.
func (l *Layered) EraseAll(ctx context.Context) error {
	l.invalidate()
	err := l.backend.EraseAll(ctx)
	l.invalidate()
	return err
}

// Stats implements Store.
func (l *Layered) Stats(ctx context.Context) (Stats, error) {
	return l.backend.Stats(ctx)
}

// Close implements Store.
func (l *Layered) Close() error {
	l.mem.Purge()
	return l.backend.Close()
}
