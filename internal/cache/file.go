package cache

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"thumbnail-engine/internal/config"
	"thumbnail-engine/internal/decoder"
	"thumbnail-engine/internal/filesystem"
	"thumbnail-engine/internal/fingerprint"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/metrics"
)

// Freedesktop size classes. Thumbnails larger than a class bound are never
// written to its directory.
const (
	sizeNormal = 128
	sizeLarge  = 256
)

// Known directories under the thumbnail root. x-large and xx-large are
// written by other applications and only cleaned here.
var sizeDirs = []string{"normal", "large", "x-large", "xx-large"}

// tEXt keys
const (
	keyURI           = "Thumb::URI"
	keyMTime         = "Thumb::MTime"
	keySize          = "Thumb::Size"
	keyImageWidth    = "Thumb::Image::Width"
	keyImageHeight   = "Thumb::Image::Height"
	keySoftware      = "Software"
	keyRequestedSize = "Thumb::X-Requested-Size"
	keyDigest        = "Thumb::X-Digest"
)

const software = "thumbnail-engine"

// FileStore keeps thumbnails as PNG files in the shared freedesktop.org
// thumbnail directory, so thumbnails are reused across applications.
type FileStore struct {
	root string
}

// NewFileStore creates the size class directories under root.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		root = config.DefaultCacheDir()
	}
	for _, dir := range sizeDirs[:2] {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o700); err != nil {
			return nil, backendErr(config.BackendFile, "open", err)
		}
	}
	logging.Info("File thumbnail cache at %s", root)
	return &FileStore{root: root}, nil
}

// Name implements Store.
func (s *FileStore) Name() string { return config.BackendFile }

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// Root returns the thumbnail directory.
func (s *FileStore) Root() string { return s.root }

// sourceURI returns the canonical URI of an absolute path.
func sourceURI(path string) string {
	u := url.URL{Scheme: "file", Path: path}
	return u.String()
}

// thumbName is the MD5 of the URI, as required for cross-application sharing.
func thumbName(path string) string {
	sum := md5.Sum([]byte(sourceURI(path)))
	return hex.EncodeToString(sum[:]) + ".png"
}

func sizeClass(size int) string {
	if size <= sizeNormal {
		return "normal"
	}
	return "large"
}

// StoreSize implements SizeClasser. Thumbnails are rendered at the full
// size of their class so other applications reading the directory get the
// size the standard promises.
func (s *FileStore) StoreSize(size int) int {
	if size <= sizeNormal {
		return sizeNormal
	}
	return sizeLarge
}

func (s *FileStore) thumbPath(path string, size int) string {
	return filepath.Join(s.root, sizeClass(size), thumbName(path))
}

// fileEntry is a parsed thumbnail file.
type fileEntry struct {
	uri           string
	mtime         int64
	size          int64
	digest        string
	width, height int
	srcLongest    int
	payload       []byte
	created       time.Time
}

func readFileEntry(path string) (*fileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := readTextChunks(data)
	if err != nil {
		return nil, err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	e := &fileEntry{
		uri:     text[keyURI],
		digest:  text[keyDigest],
		width:   cfg.Width,
		height:  cfg.Height,
		payload: data,
	}
	if e.uri == "" {
		return nil, errors.New("missing " + keyURI)
	}
	if e.mtime, err = strconv.ParseInt(text[keyMTime], 10, 64); err != nil {
		return nil, fmt.Errorf("bad %s: %w", keyMTime, err)
	}
	// Thumb::Size is optional in the standard.
	if v, ok := text[keySize]; ok {
		if e.size, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("bad %s: %w", keySize, err)
		}
	} else {
		e.size = -1
	}
	w, _ := strconv.Atoi(text[keyImageWidth])
	h, _ := strconv.Atoi(text[keyImageHeight])
	e.srcLongest = longest(w, h)

	if info, err := os.Stat(path); err == nil {
		e.created = info.ModTime()
	}
	return e, nil
}

// matches reports whether the file entry was made from fp.
func (e *fileEntry) matches(fp fingerprint.Fingerprint) bool {
	if e.uri != sourceURI(fp.Path) || e.mtime != fp.ModTime {
		return false
	}
	if e.size >= 0 && e.size != fp.Size {
		return false
	}
	if e.digest != "" && fp.Digest != "" && e.digest != fp.Digest {
		return false
	}
	return true
}

// satisfies reports whether the stored image is large enough for size. An
// image smaller than size is still complete when the source itself was no
// larger.
func (e *fileEntry) satisfies(size int) bool {
	stored := longest(e.width, e.height)
	return stored >= size || (e.srcLongest > 0 && stored >= e.srcLongest)
}

// Lookup implements Store.
func (s *FileStore) Lookup(ctx context.Context, fp fingerprint.Fingerprint, size int) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	thumb := s.thumbPath(fp.Path, size)
	e, err := readFileEntry(thumb)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		recordMiss(s.Name())
		return nil, ErrMiss
	case err != nil:
		// Unreadable or foreign files are replaced on the next store.
		logging.Debug("Ignoring unreadable thumbnail %s: %v", thumb, err)
		recordMiss(s.Name())
		return nil, ErrMiss
	}

	if !e.matches(fp) {
		recordInvalidation(s.Name(), fp)
		if err := os.Remove(thumb); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("Failed to remove stale thumbnail %s: %v", thumb, err)
		}
		recordMiss(s.Name())
		return nil, ErrMiss
	}
	if !e.satisfies(size) {
		recordMiss(s.Name())
		return nil, ErrMiss
	}

	recordHit(s.Name())
	return &Entry{
		Fingerprint: fp,
		Size:        size,
		Width:       e.width,
		Height:      e.height,
		Format:      "png",
		Payload:     e.payload,
		Ref:         thumb,
		CreatedAt:   e.created,
	}, nil
}

// Store implements Store. The file is written to a temporary name in the
// same directory and renamed into place, so readers never see a partial file.
func (s *FileStore) Store(ctx context.Context, fp fingerprint.Fingerprint, size int, bmp decoder.Bitmap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bmp.Image == nil {
		return backendErr(s.Name(), "store", errors.New("empty bitmap"))
	}

	thumb := s.thumbPath(fp.Path, size)
	if existing, err := readFileEntry(thumb); err == nil && existing.matches(fp) &&
		longest(existing.width, existing.height) >= longest(bmp.Width(), bmp.Height()) {
		return nil
	}

	encoded, err := decoder.EncodePNG(bmp.Image)
	if err != nil {
		return backendErr(s.Name(), "store", err)
	}

	keys := []string{keyURI, keyMTime, keySize, keyImageWidth, keyImageHeight, keyRequestedSize, keySoftware}
	values := map[string]string{
		keyURI:           sourceURI(fp.Path),
		keyMTime:         strconv.FormatInt(fp.ModTime, 10),
		keySize:          strconv.FormatInt(fp.Size, 10),
		keyImageWidth:    strconv.Itoa(bmp.SourceWidth),
		keyImageHeight:   strconv.Itoa(bmp.SourceHeight),
		keyRequestedSize: strconv.Itoa(size),
		keySoftware:      software,
	}
	if fp.Digest != "" {
		keys = append(keys, keyDigest)
		values[keyDigest] = fp.Digest
	}
	data, err := withTextChunks(encoded, keys, values)
	if err != nil {
		return backendErr(s.Name(), "store", err)
	}

	if err := writeAtomic(thumb, data); err != nil {
		return backendErr(s.Name(), "store", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".thumb-*.png")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Remove implements Store.
func (s *FileStore) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := thumbName(path)
	var errs []error
	for _, dir := range sizeDirs {
		if err := os.Remove(filepath.Join(s.root, dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return backendErr(s.Name(), "remove", errors.Join(errs...))
}

// thumbFiles calls fn for every thumbnail file under the known size
// directories. Missing directories are skipped.
func (s *FileStore) thumbFiles(ctx context.Context, fn func(path string, info fs.FileInfo) error) error {
	for _, dir := range sizeDirs {
		entries, err := os.ReadDir(filepath.Join(s.root, dir))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		for _, de := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de.IsDir() || !strings.HasSuffix(de.Name(), ".png") || strings.HasPrefix(de.Name(), ".") {
				continue
			}
			info, err := de.Info()
			if err != nil {
				continue
			}
			if err := fn(filepath.Join(s.root, dir, de.Name()), info); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clean implements Store. Thumbnails whose source is gone or has a
// different mtime or size are deleted; unreadable files are counted and left
// in place.
func (s *FileStore) Clean(ctx context.Context) (CleanStats, error) {
	var stats CleanStats
	err := s.thumbFiles(ctx, func(thumb string, _ fs.FileInfo) error {
		stats.Scanned++

		e, err := readFileEntry(thumb)
		if err != nil {
			logging.Debug("Skipping unreadable thumbnail %s: %v", thumb, err)
			stats.Errors++
			return nil
		}
		u, err := url.Parse(e.uri)
		if err != nil || u.Scheme != "file" {
			// Thumbnails of remote URIs belong to other applications.
			return nil
		}

		obsolete := false
		info, err := filesystem.Stat(ctx, u.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			obsolete = true
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			stats.Errors++
			return nil
		default:
			obsolete = info.ModTime().Unix() != e.mtime || (e.size >= 0 && info.Size() != e.size)
		}
		if !obsolete {
			return nil
		}

		if err := os.Remove(thumb); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("Failed to remove obsolete thumbnail %s: %v", thumb, err)
			stats.Errors++
			return nil
		}
		stats.Removed++
		return nil
	})
	if err != nil {
		return stats, backendErr(s.Name(), "clean", err)
	}
	return stats, nil
}

// EraseAll implements Store.
func (s *FileStore) EraseAll(ctx context.Context) error {
	var errs []error
	err := s.thumbFiles(ctx, func(thumb string, _ fs.FileInfo) error {
		if err := os.Remove(thumb); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	metrics.CacheEntries.WithLabelValues(s.Name()).Set(0)
	return backendErr(s.Name(), "erase", errors.Join(errs...))
}

// Stats implements Store.
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: s.Name(), Location: s.root}
	err := s.thumbFiles(ctx, func(_ string, info fs.FileInfo) error {
		stats.Entries++
		stats.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return stats, backendErr(s.Name(), "stats", err)
	}
	return stats, nil
}
