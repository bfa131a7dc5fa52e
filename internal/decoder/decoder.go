package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

// ErrUnsupported is returned for files no decoder can read.
var ErrUnsupported = errors.New("unsupported image format")

// Bitmap is a decoded image already reduced to thumbnail size.
type Bitmap struct {
	Image        image.Image
	SourceFormat string // "jpeg", "png", "text", ...
	SourceWidth  int
	SourceHeight int
}

// Width returns the thumbnail width.
func (b Bitmap) Width() int {
	if b.Image == nil {
		return 0
	}
	return b.Image.Bounds().Dx()
}

// Height returns the thumbnail height.
func (b Bitmap) Height() int {
	if b.Image == nil {
		return 0
	}
	return b.Image.Bounds().Dy()
}

// Decoder turns a source image into a thumbnail whose longest edge is at most
// size pixels. Implementations must be safe for concurrent use.
type Decoder interface {
	Decode(ctx context.Context, path string, size int) (Bitmap, error)
}

// DecodeError reports a per-file decode failure. It is never retried for the
// same file version.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a per-file decode failure rather than
// a cancellation or an I/O problem with the cache.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// JPEGQuality is used for opaque thumbnails stored in the database backend.
const JPEGQuality = 85

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode picks the compact format for img: JPEG when fully opaque, PNG when
// it has transparency. It returns the bytes and the format name.
func Encode(img image.Image) ([]byte, string, error) {
	if hasAlpha(img) {
		data, err := EncodePNG(img)
		return data, "png", err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), "jpeg", nil
}

// DecodeBytes decodes an encoded thumbnail payload.
func DecodeBytes(data []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(data))
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}
