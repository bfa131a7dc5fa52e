package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/mediatypes"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
)

// errVipsUnavailable is returned when libvips has not been started.
var errVipsUnavailable = errors.New("libvips not available")

// InitVips starts libvips, routing its log output through the logging
// package at a matching level. It is safe to call more than once.
func InitVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return
	}

	vipsLogLevel := vips.LogLevelWarning
	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLogLevel = vips.LogLevelInfo
	case logging.LevelWarn:
		vipsLogLevel = vips.LogLevelError
	case logging.LevelError:
		vipsLogLevel = vips.LogLevelCritical
	}

	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}, vipsLogLevel)

	// Conservative memory settings; concurrency comes from the generation pool
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
}

// ShutdownVips releases libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsInitialized
}

// Vips decodes with libvips, which shrinks JPEGs at decode time and reads
// formats the pure-Go codecs cannot (HEIC, AVIF, SVG). Formats the fallback
// handles are retried there when libvips fails.
type Vips struct {
	Fallback Decoder
}

// NewVips returns a libvips decoder falling back to fallback (may be nil).
func NewVips(fallback Decoder) *Vips {
	return &Vips{Fallback: fallback}
}

// Decode implements Decoder.
func (d *Vips) Decode(ctx context.Context, path string, size int) (Bitmap, error) {
	ext := mediatypes.Ext(path)
	if !mediatypes.IsSupported(ext, true) {
		return Bitmap{}, &DecodeError{Path: path, Err: ErrUnsupported}
	}
	if err := ctx.Err(); err != nil {
		return Bitmap{}, err
	}

	bmp, err := d.decode(path, size, ext)
	if err == nil {
		return bmp, nil
	}

	if d.Fallback != nil && mediatypes.IsImage(ext) {
		logging.Debug("vips failed for %s (%v), using fallback decoder", path, err)
		return d.Fallback.Decode(ctx, path, size)
	}
	return Bitmap{}, &DecodeError{Path: path, Err: err}
}

func (d *Vips) decode(path string, size int, ext string) (Bitmap, error) {
	if !IsVipsAvailable() {
		return Bitmap{}, errVipsUnavailable
	}

	importParams := vips.NewImportParams()
	importParams.AutoRotate.Set(true)

	ref, err := vips.LoadImageFromFile(path, importParams)
	if err != nil {
		return Bitmap{}, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	srcWidth, srcHeight := ref.Width(), ref.Height()

	if err := ref.Thumbnail(size, size, vips.InterestingNone); err != nil {
		return Bitmap{}, fmt.Errorf("vips resize failed: %w", err)
	}

	data, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return Bitmap{}, fmt.Errorf("vips export failed: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return Bitmap{}, fmt.Errorf("failed to decode vips output: %w", err)
	}

	format := strings.TrimPrefix(ext, ".")
	logging.Debug("Vips processed %s: %dx%d -> %dx%d", path, srcWidth, srcHeight,
		img.Bounds().Dx(), img.Bounds().Dy())

	return Bitmap{
		Image:        img,
		SourceFormat: format,
		SourceWidth:  srcWidth,
		SourceHeight: srcHeight,
	}, nil
}

var _ Decoder = (*Vips)(nil)
