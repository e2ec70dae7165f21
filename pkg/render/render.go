// Package render draws annotation previews and saves them in the supported
// image formats.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Mark is one highlighted window in pixel coordinates of the output
type Mark struct {
	Rect  image.Rectangle
	Label int
}

// Palette holds one color per label index, reused cyclically
var Palette = []color.NRGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{0, 130, 200, 255},
	{255, 225, 25, 255},
	{145, 30, 180, 255},
	{245, 130, 48, 255},
	{70, 240, 240, 255},
	{240, 50, 230, 255},
}

// GridColor is used for grid lines
var GridColor = color.NRGBA{255, 255, 255, 96}

// Color returns the palette color of a label
func Color(label int) color.NRGBA {
	if label < 0 {
		label = -label
	}
	return Palette[label%len(Palette)]
}

// Overlay returns a copy of img with every mark tinted and outlined in its
// label color. Marks outside the image are ignored.
func Overlay(img image.Image, marks []Mark, opacity float64) *image.NRGBA {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	stroke := int(math.Max(1, 0.002*float64(min(w, h))))

	for _, m := range marks {
		r := m.Rect.Intersect(out.Bounds())
		if r.Empty() {
			continue
		}
		c := Color(m.Label)
		out = imaging.Overlay(out, imaging.New(r.Dx(), r.Dy(), c), r.Min, opacity)
		drawBox(out, r, c, stroke)
	}
	return out
}

// Grid draws the lines of a window grid with the given cell size in output
// pixels. Non-positive steps draw nothing.
func Grid(img *image.NRGBA, stepX, stepY float64) {
	if stepX <= 0 || stepY <= 0 {
		return
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for x := stepX; x < float64(w); x += stepX {
		drawVLine(img, int(math.Round(x)), 0, h, GridColor)
	}
	for y := stepY; y < float64(h); y += stepY {
		drawHLine(img, int(math.Round(y)), 0, w, GridColor)
	}
}

// Save writes img to path in the format named by its extension. WebP output
// uses libwebp; every other format goes through imaging.
func Save(img image.Image, path string, quality int, lossless bool) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		if err := webp.Encode(f, img, opts); err != nil {
			f.Close()
			return fmt.Errorf("failed to encode webp: %w", err)
		}
		return f.Close()
	case ".jpg", ".jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return imaging.Save(img, path)
	}
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0, x1 = max(x0, 0), min(x1, img.Bounds().Dx())
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		blend(img.Pix[i:i+4], c)
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0, y1 = max(y0, 0), min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		blend(img.Pix[i:i+4], c)
		i += img.Stride
	}
}

// blend paints c over the pixel p using c's alpha
func blend(p []uint8, c color.NRGBA) {
	a := uint32(c.A)
	p[0] = uint8((uint32(c.R)*a + uint32(p[0])*(255-a)) / 255)
	p[1] = uint8((uint32(c.G)*a + uint32(p[1])*(255-a)) / 255)
	p[2] = uint8((uint32(c.B)*a + uint32(p[2])*(255-a)) / 255)
	p[3] = max(p[3], c.A)
}
