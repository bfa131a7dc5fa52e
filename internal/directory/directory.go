package directory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"thumbnail-engine/internal/filesystem"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/mediatypes"
)

// Entry is one image of a directory listing.
type Entry struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Ordinal int       `json:"ordinal"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Index lists the images of a directory in display order.
type Index interface {
	List(ctx context.Context, dir string) ([]Entry, error)
}

// Lister is the default Index over the local filesystem. Hidden files,
// subdirectories and unsupported formats are skipped.
type Lister struct {
	SortField mediatypes.SortField
	SortOrder mediatypes.SortOrder
	// WithVips includes formats only libvips can decode.
	WithVips bool
}

// NewLister returns a Lister sorting by field and order. Unknown values fall
// back to name ascending.
func NewLister(field, order string, withVips bool) *Lister {
	l := &Lister{
		SortField: mediatypes.SortField(strings.ToLower(field)),
		SortOrder: mediatypes.SortOrder(strings.ToLower(order)),
		WithVips:  withVips,
	}
	switch l.SortField {
	case mediatypes.SortByName, mediatypes.SortByDate, mediatypes.SortBySize:
	default:
		l.SortField = mediatypes.SortByName
	}
	if l.SortOrder != mediatypes.SortDesc {
		l.SortOrder = mediatypes.SortAsc
	}
	return l
}

// List implements Index.
func (l *Lister) List(ctx context.Context, dir string) ([]Entry, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	info, err := filesystem.Stat(ctx, abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", abs, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if strings.HasPrefix(name, ".") || de.IsDir() {
			continue
		}
		if !mediatypes.IsSupported(mediatypes.Ext(name), l.WithVips) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info
			logging.Debug("Skipping %s: %v", name, err)
			continue
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		entries = append(entries, Entry{
			Path:    filepath.Join(abs, name),
			Name:    name,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}

	l.sortEntries(entries)
	for i := range entries {
		entries[i].Ordinal = i
	}
	return entries, nil
}

func (l *Lister) sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		var cmp int
		switch l.SortField {
		case mediatypes.SortByDate:
			cmp = a.ModTime.Compare(b.ModTime)
		case mediatypes.SortBySize:
			cmp = compareInt64(a.Size, b.Size)
		}
		// Ties fall back to the name
		if cmp == 0 {
			cmp = CompareNatural(a.Name, b.Name)
		}

		if l.SortOrder == mediatypes.SortDesc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Paths returns the paths of entries in order.
func Paths(entries []Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

