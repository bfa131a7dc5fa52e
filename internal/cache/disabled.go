package cache

import (
	"context"

	"thumbnail-engine/internal/config"
	"thumbnail-engine/internal/decoder"
	"thumbnail-engine/internal/fingerprint"
)

// Disabled is the store used when caching is turned off. It never holds an
// entry, so every thumbnail is generated again.
type Disabled struct{}

// IsDisabled reports whether s keeps no thumbnails.
func IsDisabled(s Store) bool {
	_, ok := s.(Disabled)
	return ok
}

func (Disabled) Lookup(context.Context, fingerprint.Fingerprint, int) (*Entry, error) {
	return nil, ErrMiss
}

func (Disabled) Store(context.Context, fingerprint.Fingerprint, int, decoder.Bitmap) error {
	return nil
}

func (Disabled) Remove(context.Context, string) error { return nil }

func (Disabled) Clean(context.Context) (CleanStats, error) { return CleanStats{}, nil }

func (Disabled) EraseAll(context.Context) error { return nil }

func (Disabled) Stats(context.Context) (Stats, error) {
	return Stats{Backend: config.BackendNone}, nil
}

func (Disabled) Name() string { return config.BackendNone }

func (Disabled) Close() error { return nil }
