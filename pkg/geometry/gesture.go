package geometry

import (
	"fmt"

	"github.com/menta2k/tako/pkg/types"
)

// Tool names a selection gesture
type Tool string

// Selection tools
const (
	ToolRect  Tool = "rect"
	ToolLasso Tool = "lasso"
	ToolBrush Tool = "brush"
)

// Gesture is one completed pointer gesture together with the tool that made
// it. Only the fields of the chosen tool are read.
type Gesture struct {
	Tool Tool `json:"tool"`
	// Rect is the press and release rectangle of ToolRect
	Rect types.Rect `json:"rect"`
	// Points is the lasso path of ToolLasso
	Points []types.Point `json:"points,omitempty"`
	// Center and Radius describe a ToolBrush stroke; Radius is in windows
	Center types.Point `json:"center"`
	Radius float64     `json:"radius"`
}

// Select resolves a gesture on an imgH x imgW image into the sorted set of
// windows it covers, clipped to the image grid.
func Select(g Gesture, imgH, imgW int, size types.WindowSize) ([]types.Coord, error) {
	if size.H < 1 || size.W < 1 {
		return nil, fmt.Errorf("%w: window size %dx%d", types.ErrConfiguration, size.H, size.W)
	}
	var coords []types.Coord
	switch g.Tool {
	case ToolRect:
		coords = WindowsFromRect(g.Rect, size)
	case ToolLasso:
		coords = WindowsFromPolygon(g.Points, imgH, imgW, size)
	case ToolBrush:
		coords = WindowsFromDisc(CoordAt(g.Center, size), g.Radius)
	default:
		return nil, fmt.Errorf("%w: unknown selection tool %q", types.ErrValidation, g.Tool)
	}
	return Union(ClipToImage(coords, imgH, imgW, size)), nil
}
