package decoder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

func TestImagingDecode(t *testing.T) {
	dir := t.TempDir()
	wide := filepath.Join(dir, "wide.png")
	tall := filepath.Join(dir, "tall.jpg")
	small := filepath.Join(dir, "small.png")
	writePNG(t, wide, 400, 200, color.White)
	writeJPEG(t, tall, 100, 300)
	writePNG(t, small, 30, 20, color.Black)

	tests := []struct {
		name         string
		path         string
		size         int
		wantW, wantH int
		wantFormat   string
	}{
		{"landscape fits width", wide, 80, 80, 40, "png"},
		{"portrait fits height", tall, 150, 50, 150, "jpeg"},
		{"smaller source is not upscaled", small, 256, 30, 20, "png"},
	}

	d := NewImaging()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bmp, err := d.Decode(context.Background(), tt.path, tt.size)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if bmp.Width() != tt.wantW || bmp.Height() != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", bmp.Width(), bmp.Height(), tt.wantW, tt.wantH)
			}
			if bmp.SourceFormat != tt.wantFormat {
				t.Errorf("SourceFormat = %q, want %q", bmp.SourceFormat, tt.wantFormat)
			}
		})
	}
}

func TestImagingDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(corrupt, []byte("definitely not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewImaging()

	_, err := d.Decode(context.Background(), corrupt, 80)
	if !IsDecodeError(err) {
		t.Errorf("corrupt file: error = %v, want *DecodeError", err)
	}

	_, err = d.Decode(context.Background(), text, 80)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("unsupported extension: error = %v, want ErrUnsupported", err)
	}
}

func TestImagingDecodeCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, 10, 10, color.White)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewImaging().Decode(ctx, path, 80)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if IsDecodeError(err) {
		t.Error("cancellation must not be reported as a decode failure")
	}
}

func TestConstrainedSize(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
		wantNeeded   bool
	}{
		{"within limits", 1000, 800, 1000, 800, false},
		{"too wide", 8192, 4096, 4096, 2048, true},
		{"too tall", 1000, 8000, 512, 4096, true},
		{"too many pixels", 4000, 4000, 2500, 2500, true},
		{"zero size", 0, 10, 0, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxPixels := MaxImagePixels
			if tt.name == "too many pixels" {
				maxPixels = 6_250_000
			}
			w, h, needed := constrainedSize(tt.w, tt.h, MaxImageDimension, maxPixels)
			if w != tt.wantW || h != tt.wantH || needed != tt.wantNeeded {
				t.Errorf("constrainedSize(%d, %d) = (%d, %d, %v), want (%d, %d, %v)",
					tt.w, tt.h, w, h, needed, tt.wantW, tt.wantH, tt.wantNeeded)
			}
		})
	}
}

func TestApplyOrientation(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))

	tests := []struct {
		orientation  int
		wantW, wantH int
	}{
		{1, 4, 2},
		{2, 4, 2},
		{3, 4, 2},
		{4, 4, 2},
		{5, 2, 4},
		{6, 2, 4},
		{7, 2, 4},
		{8, 2, 4},
		{0, 4, 2},
	}

	for _, tt := range tests {
		out := applyOrientation(img, tt.orientation)
		if out.Bounds().Dx() != tt.wantW || out.Bounds().Dy() != tt.wantH {
			t.Errorf("orientation %d: %dx%d, want %dx%d", tt.orientation,
				out.Bounds().Dx(), out.Bounds().Dy(), tt.wantW, tt.wantH)
		}
	}
}

func TestReadOrientationWithoutExif(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, 2, 2, color.White)

	if got := readOrientation(context.Background(), path); got != 1 {
		t.Errorf("readOrientation() = %d, want 1", got)
	}
}

func TestEncodeChoosesFormat(t *testing.T) {
	opaque := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 3; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i] = 0xff
	}
	transparent := image.NewNRGBA(image.Rect(0, 0, 4, 4))

	data, format, err := Encode(opaque)
	if err != nil || format != "jpeg" {
		t.Fatalf("Encode(opaque) = %q, %v; want jpeg", format, err)
	}
	if _, decodedFormat, err := DecodeBytes(data); err != nil || decodedFormat != "jpeg" {
		t.Errorf("DecodeBytes() = %q, %v", decodedFormat, err)
	}

	if _, format, err := Encode(transparent); err != nil || format != "png" {
		t.Errorf("Encode(transparent) = %q, %v; want png", format, err)
	}
}

func TestFilenameDecode(t *testing.T) {
	tests := []struct {
		name  string
		scale float64
		size  int
	}{
		{"native scale", 1, 80},
		{"double scale", 2, 128},
		{"tiny", 1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bmp, err := NewFilename(tt.scale).Decode(context.Background(), "/photos/a-very-long-file-name-indeed.jpg", tt.size)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if bmp.Width() != tt.size || bmp.Height() != tt.size {
				t.Errorf("size = %dx%d, want %dx%d", bmp.Width(), bmp.Height(), tt.size, tt.size)
			}
			if bmp.SourceFormat != FilenameFormat {
				t.Errorf("SourceFormat = %q", bmp.SourceFormat)
			}
		})
	}
}

func TestFilenameDoesNotReadFile(t *testing.T) {
	if _, err := NewFilename(1).Decode(context.Background(), "/does/not/exist.heic", 64); err != nil {
		t.Errorf("Decode() error for a missing file: %v", err)
	}
}

func TestWrapName(t *testing.T) {
	got := wrapName("abcdefgh", 3)
	want := []string{"abc", "def", "gh"}
	if len(got) != len(want) {
		t.Fatalf("wrapName() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
	if wrapName("", 3) != nil {
		t.Error("wrapName(\"\") should be nil")
	}
}

func TestVipsFallsBackWhenUnavailable(t *testing.T) {
	if IsVipsAvailable() {
		t.Skip("libvips initialized; fallback path not exercised")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, 200, 100, color.White)

	bmp, err := NewVips(NewImaging()).Decode(context.Background(), path, 50)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if bmp.Width() != 50 || bmp.Height() != 25 {
		t.Errorf("size = %dx%d, want 50x25", bmp.Width(), bmp.Height())
	}

	_, err = NewVips(nil).Decode(context.Background(), path, 50)
	if !IsDecodeError(err) {
		t.Errorf("without fallback: error = %v, want *DecodeError", err)
	}
}
