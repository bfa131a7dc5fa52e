package decoder

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FilenameFormat is the SourceFormat reported for synthesized thumbnails.
const FilenameFormat = "text"

var (
	filenameBackground = color.NRGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}
	filenameForeground = color.NRGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
)

// Filename renders the file name as text instead of decoding the image.
// It never touches the file contents.
type Filename struct {
	// Scale enlarges the glyphs; 1 draws the 7x13 face at native size.
	Scale float64
}

// NewFilename returns a Filename synthesizer with the given font scale.
func NewFilename(scale float64) *Filename {
	if scale <= 0 {
		scale = 1
	}
	return &Filename{Scale: scale}
}

// Decode implements Decoder.
func (d *Filename) Decode(ctx context.Context, path string, size int) (Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return Bitmap{}, err
	}

	scale := d.Scale
	if scale <= 0 {
		scale = 1
	}

	// Render at the native glyph size on a proportionally smaller canvas,
	// then scale up to the requested size.
	side := max(int(float64(size)/scale), 8)
	canvas := image.NewNRGBA(image.Rect(0, 0, side, side))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: filenameBackground}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  &image.Uniform{C: filenameForeground},
		Face: face,
	}

	lines := wrapName(filepath.Base(path), max((side-4)/face.Advance, 1))
	lineHeight := face.Height
	maxLines := max((side-4)/lineHeight, 1)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}

	top := (side - len(lines)*lineHeight) / 2
	for i, line := range lines {
		width := drawer.MeasureString(line).Ceil()
		x := (side - width) / 2
		y := top + i*lineHeight + face.Ascent
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(line)
	}

	var img image.Image = canvas
	if side != size {
		img = imaging.Resize(canvas, size, size, imaging.NearestNeighbor)
	}

	return Bitmap{Image: img, SourceFormat: FilenameFormat}, nil
}

// wrapName splits name into lines of at most width runes.
func wrapName(name string, width int) []string {
	runes := []rune(name)
	if len(runes) == 0 {
		return nil
	}
	var lines []string
	for len(runes) > width {
		lines = append(lines, string(runes[:width]))
		runes = runes[width:]
	}
	return append(lines, string(runes))
}

var _ Decoder = (*Filename)(nil)
