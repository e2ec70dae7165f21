// Package raster holds images as plain arrays of 8-bit samples.
//
// A Raster is the in-memory form of every image the stores handle. Whatever
// the source depth, pixels are forced to uint8 so the byte size of a raster is
// exactly Height*Width*Channels and can be compared against a memory ceiling.
package raster

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/menta2k/tako/pkg/types"
)

// Raster is a row-major, channel-interleaved array of uint8 samples.
type Raster struct {
	Height   int
	Width    int
	Channels int
	Pix      []uint8
}

// New allocates a zeroed raster
func New(height, width, channels int) *Raster {
	return &Raster{
		Height:   height,
		Width:    width,
		Channels: channels,
		Pix:      make([]uint8, height*width*channels),
	}
}

// FromShape builds a raster over pix using an array shape of (h, w) or (h, w, c).
func FromShape(shape []int, pix []uint8) (*Raster, error) {
	var r Raster
	switch len(shape) {
	case 2:
		r = Raster{Height: shape[0], Width: shape[1], Channels: 1}
	case 3:
		r = Raster{Height: shape[0], Width: shape[1], Channels: shape[2]}
	default:
		return nil, fmt.Errorf("raster shape must have 2 or 3 dimensions, got %v", shape)
	}
	if r.Height*r.Width*r.Channels != len(pix) {
		return nil, fmt.Errorf("raster shape %v does not match %d samples", shape, len(pix))
	}
	r.Pix = pix
	return &r, nil
}

// FromImage converts a decoded image to 8-bit samples. Gray images keep one
// channel, opaque color images become RGB and everything else RGBA.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		r := New(h, w, 1)
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(r.Pix[y*w:(y+1)*w], src.Pix[off:off+w])
		}
		return r
	case *image.Gray16:
		r := New(h, w, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Pix[y*w+x] = uint8(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y >> 8)
			}
		}
		return r
	}

	nrgba := imaging.Clone(img)
	channels := 4
	if isOpaque(img) {
		channels = 3
	}
	r := New(h, w, channels)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			copy(r.Pix[(y*w+x)*channels:(y*w+x+1)*channels], row[x*4:x*4+channels])
		}
	}
	return r
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// Shape returns (h, w) for single-channel rasters and (h, w, c) otherwise
func (r *Raster) Shape() []int {
	if r.Channels == 1 {
		return []int{r.Height, r.Width}
	}
	return []int{r.Height, r.Width, r.Channels}
}

// ByteSize is the in-memory footprint of the samples
func (r *Raster) ByteSize() int64 {
	return int64(r.Height) * int64(r.Width) * int64(r.Channels)
}

// Bounds returns the pixel rectangle anchored at the origin
func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

// Sub copies the samples inside rect into a new raster.
func (r *Raster) Sub(rect image.Rectangle) *Raster {
	rect = rect.Intersect(r.Bounds())
	out := New(rect.Dy(), rect.Dx(), r.Channels)
	rowLen := rect.Dx() * r.Channels
	for y := 0; y < rect.Dy(); y++ {
		src := ((rect.Min.Y+y)*r.Width + rect.Min.X) * r.Channels
		copy(out.Pix[y*rowLen:(y+1)*rowLen], r.Pix[src:src+rowLen])
	}
	return out
}

// Paste copies src into r with its top-left corner at at.
func (r *Raster) Paste(src *Raster, at image.Point) error {
	if src.Channels != r.Channels {
		return fmt.Errorf("channel mismatch: %d vs %d", src.Channels, r.Channels)
	}
	dst := src.Bounds().Add(at)
	if !dst.In(r.Bounds()) {
		return fmt.Errorf("paste rectangle %v outside %v", dst, r.Bounds())
	}
	rowLen := src.Width * r.Channels
	for y := 0; y < src.Height; y++ {
		off := ((at.Y+y)*r.Width + at.X) * r.Channels
		copy(r.Pix[off:off+rowLen], src.Pix[y*rowLen:(y+1)*rowLen])
	}
	return nil
}

// Window extracts the pixels of grid cell c. Parts of the window hanging
// over the right or bottom edge are zero so every window has full size.
func (r *Raster) Window(c types.Coord, size types.WindowSize) *Raster {
	out := New(size.H, size.W, r.Channels)
	cell := image.Rect(c.J*size.W, c.I*size.H, (c.J+1)*size.W, (c.I+1)*size.H)
	visible := cell.Intersect(r.Bounds())
	if visible.Empty() {
		return out
	}
	rowLen := visible.Dx() * r.Channels
	for y := visible.Min.Y; y < visible.Max.Y; y++ {
		src := (y*r.Width + visible.Min.X) * r.Channels
		dst := ((y-cell.Min.Y)*size.W + (visible.Min.X - cell.Min.X)) * r.Channels
		copy(out.Pix[dst:dst+rowLen], r.Pix[src:src+rowLen])
	}
	return out
}

// Equal reports whether both rasters have the same shape and samples
func (r *Raster) Equal(o *Raster) bool {
	if r.Height != o.Height || r.Width != o.Width || r.Channels != o.Channels {
		return false
	}
	for i := range r.Pix {
		if r.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// ToImage wraps the samples in a standard image for display.
func (r *Raster) ToImage() image.Image {
	switch r.Channels {
	case 1:
		return &image.Gray{Pix: r.Pix, Stride: r.Width, Rect: r.Bounds()}
	case 4:
		return &image.NRGBA{Pix: r.Pix, Stride: r.Width * 4, Rect: r.Bounds()}
	}
	img := image.NewNRGBA(r.Bounds())
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			p := r.Pix[(y*r.Width+x)*r.Channels:]
			var c color.NRGBA
			if r.Channels >= 3 {
				c = color.NRGBA{p[0], p[1], p[2], 255}
			} else {
				c = color.NRGBA{p[0], p[0], p[0], 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// Preview returns a display copy whose long side is at most maxDim pixels.
func (r *Raster) Preview(maxDim int) image.Image {
	img := r.ToImage()
	if maxDim <= 0 || (r.Width <= maxDim && r.Height <= maxDim) {
		return img
	}
	if r.Width >= r.Height {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}
