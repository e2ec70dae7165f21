package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/tako/pkg/geometry"
	"github.com/menta2k/tako/pkg/types"
)

// gestureFlags describe one selection on the command line
type gestureFlags struct {
	image  int
	tool   string
	rect   string
	points string
	center string
	radius float64
}

func (g *gestureFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&g.image, "image", "i", 0, "image chunk index")
	f.StringVarP(&g.tool, "tool", "t", string(geometry.ToolRect), "selection tool: rect|lasso|brush")
	f.StringVar(&g.rect, "rect", "", "rectangle corners as x1,y1,x2,y2 (rect)")
	f.StringVar(&g.points, "points", "", "polygon vertices as x,y;x,y;... (lasso)")
	f.StringVar(&g.center, "center", "", "stroke center as x,y (brush)")
	f.Float64Var(&g.radius, "radius", 0, "stroke radius in windows (brush)")
}

// gesture converts the flags into a geometry.Gesture
func (g *gestureFlags) gesture() (geometry.Gesture, error) {
	out := geometry.Gesture{Tool: geometry.Tool(g.tool), Radius: g.radius}
	switch out.Tool {
	case geometry.ToolRect:
		v, err := parseFloats(g.rect, ",", 4)
		if err != nil {
			return out, fmt.Errorf("--rect: %w", err)
		}
		out.Rect = geometry.RectFromPoints(types.Point{X: v[0], Y: v[1]}, types.Point{X: v[2], Y: v[3]})
	case geometry.ToolLasso:
		for _, p := range strings.Split(g.points, ";") {
			if strings.TrimSpace(p) == "" {
				continue
			}
			pt, err := parsePoint(p)
			if err != nil {
				return out, fmt.Errorf("--points: %w", err)
			}
			out.Points = append(out.Points, pt)
		}
	case geometry.ToolBrush:
		pt, err := parsePoint(g.center)
		if err != nil {
			return out, fmt.Errorf("--center: %w", err)
		}
		out.Center = pt
	default:
		return out, fmt.Errorf("%w: unknown selection tool %q", types.ErrValidation, g.tool)
	}
	return out, nil
}

func parsePoint(s string) (types.Point, error) {
	v, err := parseFloats(s, ",", 2)
	if err != nil {
		return types.Point{}, err
	}
	return types.Point{X: v[0], Y: v[1]}, nil
}

func parseFloats(s, sep string, n int) ([]float64, error) {
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return nil, fmt.Errorf("%w: expected %d values in %q", types.ErrValidation, n, s)
	}
	out := make([]float64, n)
	for k, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
		}
		out[k] = v
	}
	return out, nil
}

func newLabelCmd(a *app) *cobra.Command {
	var g gestureFlags
	var label string
	cmd := &cobra.Command{
		Use:   "label",
		Short: "Label the windows covered by a selection",
		Long: `Resolves a selection on one image chunk into grid windows and stores
each window under the given label. Windows that were already labelled are
overwritten.

Examples:
  tako label -i 0 --rect 10,10,200,120 --label "Healthy Skin"
  tako label -i 3 -t lasso --points "0,0;300,0;0,300" --label Lesion
  tako label -i 3 -t brush --center 120,80 --radius 2 --label Lesion`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gesture, err := g.gesture()
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			coords, err := s.Select(g.image, gesture)
			if err != nil {
				return err
			}
			res, err := s.Annotate(g.image, coords, label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "image %d: %d windows labelled %q (%d new, %d replaced)\n",
				g.image, len(coords), label, res.Added, res.Replaced)
			return nil
		},
	}
	g.register(cmd)
	cmd.Flags().StringVarP(&label, "label", "l", "", "label name")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func newEraseCmd(a *app) *cobra.Command {
	var g gestureFlags
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Remove the samples covered by a selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gesture, err := g.gesture()
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			coords, err := s.Select(g.image, gesture)
			if err != nil {
				return err
			}
			n, err := s.Erase(g.image, coords)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "image %d: %d samples removed\n", g.image, n)
			return nil
		},
	}
	g.register(cmd)
	return cmd
}
