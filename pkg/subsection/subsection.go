// Package subsection splits rasters into memory-bounded tiles.
//
// A raster is divided into a division_factor x division_factor grid of tiles,
// with the factor grown from 1 until the largest tile fits the byte ceiling.
// Tile boundaries along an axis of length L sit at floor(k*L/df), so tiles on
// one axis differ by at most one pixel and the remainder is spread over the
// grid instead of being dropped. An axis shorter than df is capped at one
// pixel per tile.
package subsection

import (
	"fmt"
	"image"
	"iter"

	"github.com/menta2k/tako/pkg/raster"
	"github.com/menta2k/tako/pkg/types"
)

// Chunk is one tile of a source raster.
type Chunk struct {
	// Rect locates the tile inside the source raster
	Rect   image.Rectangle
	Raster *raster.Raster
}

// Plan is the deterministic tiling of one raster.
type Plan struct {
	DivisionFactor int
	Rows           int
	Cols           int
	Rects          []image.Rectangle

	src *raster.Raster
}

// Split computes the tiling of img under maxBytes. The tiles themselves are
// only copied out when Chunks is iterated.
func Split(img *raster.Raster, maxBytes int64) (*Plan, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("%w: max chunk bytes must be positive, got %d", types.ErrValidation, maxBytes)
	}
	if img.Height == 0 || img.Width == 0 {
		return nil, fmt.Errorf("%w: cannot split empty raster", types.ErrValidation)
	}

	df := DivisionFactor(img.Height, img.Width, img.Channels, maxBytes)
	if df == 0 {
		return nil, fmt.Errorf("%w: a single pixel of %d bytes exceeds %d", types.ErrValidation, img.Channels, maxBytes)
	}

	rows, cols := min(df, img.Height), min(df, img.Width)
	ys := boundaries(img.Height, rows)
	xs := boundaries(img.Width, cols)

	p := &Plan{DivisionFactor: df, Rows: rows, Cols: cols, src: img}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p.Rects = append(p.Rects, image.Rect(xs[c], ys[r], xs[c+1], ys[r+1]))
		}
	}
	return p, nil
}

// DivisionFactor returns the smallest factor whose largest tile fits maxBytes,
// or 0 when no factor can.
func DivisionFactor(height, width, channels int, maxBytes int64) int {
	for df := 1; ; df++ {
		rows, cols := min(df, height), min(df, width)
		tile := int64(ceilDiv(height, rows)) * int64(ceilDiv(width, cols)) * int64(channels)
		if tile <= maxBytes {
			return df
		}
		if rows == height && cols == width {
			return 0
		}
	}
}

// Len is the number of tiles
func (p *Plan) Len() int {
	return len(p.Rects)
}

// Chunks yields every tile in row-major order. It may be ranged over any
// number of times and yields the same tiles each time.
func (p *Plan) Chunks() iter.Seq2[int, Chunk] {
	return func(yield func(int, Chunk) bool) {
		for k, rect := range p.Rects {
			if !yield(k, Chunk{Rect: rect, Raster: p.src.Sub(rect)}) {
				return
			}
		}
	}
}

// Reassemble stitches chunks back into a raster of the given shape.
func Reassemble(height, width, channels int, chunks []Chunk) (*raster.Raster, error) {
	out := raster.New(height, width, channels)
	covered := 0
	for _, c := range chunks {
		if err := out.Paste(c.Raster, c.Rect.Min); err != nil {
			return nil, fmt.Errorf("failed to paste chunk at %v: %w", c.Rect, err)
		}
		covered += c.Rect.Dx() * c.Rect.Dy()
	}
	if covered != height*width {
		return nil, fmt.Errorf("chunks cover %d pixels, want %d", covered, height*width)
	}
	return out, nil
}

func boundaries(length, parts int) []int {
	b := make([]int, parts+1)
	for k := range b {
		b[k] = k * length / parts
	}
	return b
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
