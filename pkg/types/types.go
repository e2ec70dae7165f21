package types

// Point is a pixel-space position reported by a pointer gesture.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in pixel space defined by two corners.
// The corners may be given in any order; use Normalize before reading
// X1 <= X2 and Y1 <= Y2.
type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Normalize orders the corners independently per axis
func (r Rect) Normalize() Rect {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// Width returns the horizontal extent
func (r Rect) Width() float64 {
	n := r.Normalize()
	return n.X2 - n.X1
}

// Height returns the vertical extent
func (r Rect) Height() float64 {
	n := r.Normalize()
	return n.Y2 - n.Y1
}

// Contains reports whether o lies entirely inside r
func (r Rect) Contains(o Rect) bool {
	r, o = r.Normalize(), o.Normalize()
	return o.X1 >= r.X1 && o.Y1 >= r.Y1 && o.X2 <= r.X2 && o.Y2 <= r.Y2
}

// Coord addresses one window of the grid as (row, column).
type Coord struct {
	I int `json:"i"`
	J int `json:"j"`
}

// Less orders coordinates row-major
func (c Coord) Less(o Coord) bool {
	if c.I != o.I {
		return c.I < o.I
	}
	return c.J < o.J
}

// WindowSize is the fixed (height, width) of one grid cell in pixels.
type WindowSize struct {
	H int `json:"h"`
	W int `json:"w"`
}
