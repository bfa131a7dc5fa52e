package decoder

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"thumbnail-engine/internal/filesystem"
	"thumbnail-engine/internal/logging"
)

const (
	// MaxImageDimension is the maximum width or height processed at full
	// resolution. Larger images are downscaled right after decoding.
	MaxImageDimension = 4096

	// MaxImagePixels is the maximum total pixels processed at full
	// resolution (~20MP, ~80MB in RGBA).
	MaxImagePixels = 20_000_000
)

// ImageConfig is the header information of a source image.
type ImageConfig struct {
	Width  int
	Height int
	Format string
}

// ReadConfig returns image dimensions and format without fully decoding.
func ReadConfig(ctx context.Context, path string) (ImageConfig, error) {
	file, err := filesystem.Open(ctx, path)
	if err != nil {
		return ImageConfig{}, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return ImageConfig{}, err
	}

	return ImageConfig{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// constrainedSize returns the dimensions an image of width x height is
// reduced to before thumbnailing, and whether any reduction is needed.
func constrainedSize(width, height, maxDimension, maxPixels int) (int, int, bool) {
	if width <= 0 || height <= 0 {
		return width, height, false
	}
	if width <= maxDimension && height <= maxDimension && width*height <= maxPixels {
		return width, height, false
	}

	targetWidth, targetHeight := width, height

	if width > maxDimension || height > maxDimension {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}

	if targetPixels := targetWidth * targetHeight; targetPixels > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(targetPixels))
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}

	return max(targetWidth, 1), max(targetHeight, 1), true
}

// constrain downsizes img when it exceeds the processing limits.
func constrain(path string, img image.Image, maxDimension, maxPixels int) image.Image {
	b := img.Bounds()
	w, h, needed := constrainedSize(b.Dx(), b.Dy(), maxDimension, maxPixels)
	if !needed {
		return img
	}
	logging.Debug("Constraining large image %s from %dx%d to %dx%d", path, b.Dx(), b.Dy(), w, h)
	return imaging.Resize(img, w, h, imaging.Box)
}
