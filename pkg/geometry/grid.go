// Package geometry converts pointer gestures into sets of grid windows.
//
// Every function is pure. The window size is always passed in by the caller;
// nothing here reads tool or selection state.
package geometry

import (
	"math"
	"slices"

	"github.com/menta2k/tako/pkg/types"
)

// epsilon biases an upper edge lying on a grid line outward so that the
// outline never collapses to zero extent.
const epsilon = 1e-7

// RectFromPoints builds the rectangle spanned by a press and a release point.
func RectFromPoints(p1, p2 types.Point) types.Rect {
	return types.Rect{X1: p1.X, Y1: p1.Y, X2: p2.X, Y2: p2.Y}.Normalize()
}

// Outline returns the smallest grid-aligned rectangle containing rect.
// Rectangles already on the grid come back unchanged; a rectangle whose
// rounded extent would be zero along an axis gets one full window there.
// Without a valid window size the normalized rect is returned as is.
func Outline(rect types.Rect, size types.WindowSize) types.Rect {
	r := rect.Normalize()
	if !validSize(size) {
		return r
	}
	h, w := float64(size.H), float64(size.W)

	out := types.Rect{
		X1: math.Floor(r.X1/w) * w,
		Y1: math.Floor(r.Y1/h) * h,
		X2: math.Ceil(r.X2/w) * w,
		Y2: math.Ceil(r.Y2/h) * h,
	}
	if out.X2 <= out.X1 {
		out.X2 = math.Ceil(r.X2/w+epsilon) * w
	}
	if out.Y2 <= out.Y1 {
		out.Y2 = math.Ceil(r.Y2/h+epsilon) * h
	}
	return out
}

// WindowsFromRect enumerates every grid coordinate covered by the outline of
// rect. An invalid window size selects nothing.
func WindowsFromRect(rect types.Rect, size types.WindowSize) []types.Coord {
	if !validSize(size) {
		return nil
	}
	o := Outline(rect, size)
	h, w := float64(size.H), float64(size.W)
	i0, i1 := int(math.Round(o.Y1/h)), int(math.Round(o.Y2/h))
	j0, j1 := int(math.Round(o.X1/w)), int(math.Round(o.X2/w))

	coords := make([]types.Coord, 0, (i1-i0)*(j1-j0))
	for i := i0; i < i1; i++ {
		for j := j0; j < j1; j++ {
			coords = append(coords, types.Coord{I: i, J: j})
		}
	}
	return coords
}

// WindowsFromPolygon returns each window of the image grid whose center is
// inside the polygon under the even-odd rule. This samples one point per
// window instead of intersecting areas: a window is selected iff its center is
// interior to the lasso. Polygons with fewer than three points, or an invalid
// window size, select nothing.
func WindowsFromPolygon(points []types.Point, imgH, imgW int, size types.WindowSize) []types.Coord {
	if len(points) < 3 || !validSize(size) {
		return nil
	}
	rows, cols := GridDims(imgH, imgW, size)

	var coords []types.Coord
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if containsEvenOdd(points, WindowCenter(types.Coord{I: i, J: j}, size)) {
				coords = append(coords, types.Coord{I: i, J: j})
			}
		}
	}
	return coords
}

// containsEvenOdd casts a horizontal ray from p and counts edge crossings.
func containsEvenOdd(poly []types.Point, p types.Point) bool {
	inside := false
	for a, b := 0, len(poly)-1; a < len(poly); b, a = a, a+1 {
		pa, pb := poly[a], poly[b]
		if (pa.Y > p.Y) != (pb.Y > p.Y) {
			x := pa.X + (p.Y-pa.Y)*(pb.X-pa.X)/(pb.Y-pa.Y)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// WindowsFromDisc selects every window whose center lies within radius
// windows of the center window, measured in grid units.
func WindowsFromDisc(center types.Coord, radius float64) []types.Coord {
	if radius < 0 {
		return nil
	}
	reach := int(math.Floor(radius))
	var coords []types.Coord
	for di := -reach; di <= reach; di++ {
		for dj := -reach; dj <= reach; dj++ {
			if math.Hypot(float64(di), float64(dj)) <= radius {
				coords = append(coords, types.Coord{I: center.I + di, J: center.J + dj})
			}
		}
	}
	return coords
}

// CoordAt returns the window containing pixel p. size must be valid.
func CoordAt(p types.Point, size types.WindowSize) types.Coord {
	return types.Coord{
		I: int(math.Floor(p.Y / float64(size.H))),
		J: int(math.Floor(p.X / float64(size.W))),
	}
}

// WindowCenter is the pixel-space center of window c
func WindowCenter(c types.Coord, size types.WindowSize) types.Point {
	return types.Point{
		X: float64(c.J*size.W) + float64(size.W)/2,
		Y: float64(c.I*size.H) + float64(size.H)/2,
	}
}

// WindowRect is the pixel-space rectangle of window c
func WindowRect(c types.Coord, size types.WindowSize) types.Rect {
	return types.Rect{
		X1: float64(c.J * size.W),
		Y1: float64(c.I * size.H),
		X2: float64((c.J + 1) * size.W),
		Y2: float64((c.I + 1) * size.H),
	}
}

// GridDims returns the number of window rows and columns needed to cover an
// image, counting partial windows at the right and bottom edges. The grid is
// empty for an invalid window size.
func GridDims(imgH, imgW int, size types.WindowSize) (rows, cols int) {
	if !validSize(size) {
		return 0, 0
	}
	return (imgH + size.H - 1) / size.H, (imgW + size.W - 1) / size.W
}

// ClipToImage drops coordinates outside the image grid.
func ClipToImage(coords []types.Coord, imgH, imgW int, size types.WindowSize) []types.Coord {
	rows, cols := GridDims(imgH, imgW, size)
	out := coords[:0:0]
	for _, c := range coords {
		if c.I >= 0 && c.J >= 0 && c.I < rows && c.J < cols {
			out = append(out, c)
		}
	}
	return out
}

// validSize reports whether both window dimensions are at least one pixel
func validSize(size types.WindowSize) bool {
	return size.H >= 1 && size.W >= 1
}

// Union merges coordinate sets into one sorted, duplicate-free set.
func Union(sets ...[]types.Coord) []types.Coord {
	var out []types.Coord
	for _, s := range sets {
		out = append(out, s...)
	}
	slices.SortFunc(out, compare)
	return slices.Compact(out)
}

func compare(a, b types.Coord) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
