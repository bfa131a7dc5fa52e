package cache

import (
	"context"
	"fmt"

	"thumbnail-engine/internal/config"
	"thumbnail-engine/internal/metrics"
)

// Open creates the store selected by cfg.Backend, fronted by a memory LRU
// when cfg.MemoryEntries is positive.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		backend Store
		err     error
	)
	switch cfg.Backend {
	case config.BackendFile:
		backend, err = NewFileStore(cfg.CacheDir)
	case config.BackendDatabase:
		backend, err = NewDBStore(ctx, cfg.DatabasePath)
	case config.BackendNone:
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MemoryEntries <= 0 {
		return backend, nil
	}
	layered, err := NewLayered(backend, cfg.MemoryEntries)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return layered, nil
}

// StatsAdapter exposes a Store to the periodic metrics collector.
type StatsAdapter struct {
	Store Store
}

// CacheStats implements metrics.StatsProvider.
func (a StatsAdapter) CacheStats(ctx context.Context) (metrics.Stats, error) {
	s, err := a.Store.Stats(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Stats{Backend: s.Backend, Entries: s.Entries, Bytes: s.Bytes}, nil
}
