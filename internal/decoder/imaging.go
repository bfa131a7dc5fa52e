package decoder

import (
	"context"
	"fmt"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"thumbnail-engine/internal/filesystem"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/mediatypes"
)

// Imaging decodes images with the standard library codecs plus x/image and
// resizes them with disintegration/imaging.
type Imaging struct {
	MaxDimension int
	MaxPixels    int
}

// NewImaging returns an Imaging decoder with the default memory constraints.
func NewImaging() *Imaging {
	return &Imaging{MaxDimension: MaxImageDimension, MaxPixels: MaxImagePixels}
}

// Decode implements Decoder.
func (d *Imaging) Decode(ctx context.Context, path string, size int) (Bitmap, error) {
	if !mediatypes.IsImage(mediatypes.Ext(path)) {
		return Bitmap{}, &DecodeError{Path: path, Err: ErrUnsupported}
	}
	if err := ctx.Err(); err != nil {
		return Bitmap{}, err
	}

	cfg, err := ReadConfig(ctx, path)
	if err != nil {
		if filesystem.IsTransient(err) || ctx.Err() != nil {
			return Bitmap{}, err
		}
		return Bitmap{}, &DecodeError{Path: path, Err: fmt.Errorf("%w: %v", ErrUnsupported, err)}
	}

	f, err := filesystem.Open(ctx, path)
	if err != nil {
		return Bitmap{}, err
	}
	img, err := imaging.Decode(f)
	_ = f.Close()
	if err != nil {
		return Bitmap{}, &DecodeError{Path: path, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return Bitmap{}, err
	}

	img = constrain(path, img, d.MaxDimension, d.MaxPixels)
	img = applyOrientation(img, readOrientation(ctx, path))
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	logging.Debug("Decoded %s (%s %dx%d) to %dx%d", path, cfg.Format, cfg.Width, cfg.Height,
		thumb.Bounds().Dx(), thumb.Bounds().Dy())

	return Bitmap{
		Image:        thumb,
		SourceFormat: cfg.Format,
		SourceWidth:  cfg.Width,
		SourceHeight: cfg.Height,
	}, nil
}

var _ Decoder = (*Imaging)(nil)
