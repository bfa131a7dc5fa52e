package fingerprint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"thumbnail-engine/internal/filesystem"
	"thumbnail-engine/internal/metrics"
)

// ErrNotRegular is returned for directories and other non-regular files.
var ErrNotRegular = errors.New("not a regular file")

// Fingerprint identifies one version of a source file. A cached thumbnail is
// valid only while the fingerprint it was made from equals the live one.
type Fingerprint struct {
	Path    string // absolute, cleaned
	Size    int64  // bytes
	ModTime int64  // unix seconds
	Digest  string // hex blake2b-256 of the content, empty when not computed
}

// Key returns a stable string identifying this version of the file.
func (f Fingerprint) Key() string {
	key := f.Path + "\x00" + strconv.FormatInt(f.Size, 10) + "\x00" + strconv.FormatInt(f.ModTime, 10)
	if f.Digest != "" {
		key += "\x00" + f.Digest
	}
	return key
}

// Equal reports whether f and other describe the same file version. Digests
// are compared only when both sides carry one.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if f.Path != other.Path || f.Size != other.Size || f.ModTime != other.ModTime {
		return false
	}
	if f.Digest != "" && other.Digest != "" {
		return f.Digest == other.Digest
	}
	return true
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s (size=%d mtime=%d)", f.Path, f.Size, f.ModTime)
}

// Fingerprinter computes fingerprints for source files.
type Fingerprinter struct {
	// Digest enables content hashing. It reads the whole file, so it is off
	// by default and suited to sources whose mtime is unreliable.
	Digest bool
	Retry  filesystem.RetryConfig
}

// New returns a Fingerprinter using the default retry policy.
func New(digest bool) *Fingerprinter {
	return &Fingerprinter{Digest: digest, Retry: filesystem.DefaultRetryConfig()}
}

// Compute stats path (retrying transient errors) and returns its fingerprint.
func (fp *Fingerprinter) Compute(ctx context.Context, path string) (Fingerprint, error) {
	start := time.Now()
	defer func() {
		metrics.GenerationPhaseDuration.WithLabelValues("fingerprint").Observe(time.Since(start).Seconds())
	}()

	abs, err := filepath.Abs(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := filesystem.StatWithRetry(ctx, abs, fp.Retry)
	if err != nil {
		return Fingerprint{}, err
	}
	if !info.Mode().IsRegular() {
		return Fingerprint{}, fmt.Errorf("%s: %w", abs, ErrNotRegular)
	}

	result := Fingerprint{
		Path:    abs,
		Size:    info.Size(),
		ModTime: info.ModTime().Unix(),
	}

	if fp.Digest {
		digest, err := fp.digest(ctx, abs)
		if err != nil {
			return Fingerprint{}, err
		}
		result.Digest = digest
	}

	return result, nil
}

func (fp *Fingerprinter) digest(ctx context.Context, path string) (string, error) {
	f, err := filesystem.OpenWithRetry(ctx, path, fp.Retry)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
