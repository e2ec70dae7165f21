// Package tako builds labelled window datasets from large raster images.
//
// An annotation session imports a directory of images into memory-bounded
// chunks, overlays a fixed grid of windows on each chunk, turns selection
// gestures into sets of windows and stores the labelled windows in one shard
// per chunk. Finalize merges the shards into a three-array dataset:
// <output>_X.npy with the window pixels, <output>_Y.npy with the label
// indices and <output>_I.npy with the grid coordinates.
//
// Basic usage:
//
//	cfg := config.Default()
//	cfg.Input.InputDir = "slides/"
//	cfg.Input.LabelFile = "labels.txt"
//	cfg.Window = config.WindowConfig{Height: 64, Width: 64}
//	cfg.Reset = true
//
//	session, err := tako.Open(cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	coords, err := session.Select(0, geometry.Gesture{
//		Tool: geometry.ToolRect,
//		Rect: types.Rect{X1: 10, Y1: 10, X2: 200, Y2: 120},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := session.Annotate(0, coords, "Healthy Skin"); err != nil {
//		log.Fatal(err)
//	}
//
//	if _, err := session.Finalize(); err != nil {
//		log.Fatal(err)
//	}
//
// The package ties together:
//
// 1. ImageStore (pkg/imagestore): chunked image storage built on pkg/subsection
// 2. Geometry (pkg/geometry): rectangle, lasso and brush selections
// 3. ClassificationStore (pkg/classification): per-image shards and the final merge
//
// Nothing is merged implicitly. A session that ends without Finalize keeps its
// shards on disk and can be reopened later without reset.
package tako

import (
	"fmt"
	"image"
	"math"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/menta2k/tako/internal/config"
	"github.com/menta2k/tako/internal/logging"
	"github.com/menta2k/tako/pkg/classification"
	"github.com/menta2k/tako/pkg/geometry"
	"github.com/menta2k/tako/pkg/imagestore"
	"github.com/menta2k/tako/pkg/labels"
	"github.com/menta2k/tako/pkg/raster"
	"github.com/menta2k/tako/pkg/render"
	"github.com/menta2k/tako/pkg/types"
)

// Version of the tako library
const Version = "0.1.0"

// Session is one annotator's ownership of an image directory and its
// classification shards.
type Session struct {
	cfg     *config.Config
	labels  *labels.Set
	images  *imagestore.Store
	classes *classification.Store
	logger  *zap.Logger
}

// Open validates cfg and the label file, then opens both stores. Images are
// imported when cfg.Reset is set or the image directory holds no chunks yet.
// Configuration errors are returned before any directory is touched.
func Open(cfg *config.Config, logger *zap.Logger) (*Session, error) {
	logger = logging.OrNop(logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	set, err := labels.Load(cfg.Input.LabelFile)
	if err != nil {
		return nil, err
	}

	needImport := cfg.Reset || !hasChunks(cfg.Storage.ImageDir)
	if needImport {
		if err := cfg.ValidateInputDir(); err != nil {
			return nil, err
		}
	}

	images, err := imagestore.Open(cfg.Storage.ImageDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open image store: %w", err)
	}
	if needImport {
		if _, err := images.Import(cfg.Input.InputDir, cfg.Storage.MaxChunkBytes, cfg.Reset); err != nil {
			return nil, fmt.Errorf("import failed: %w", err)
		}
	}

	classes, err := classification.Open(images, cfg.Storage.ClassificationDir, cfg.Input.OutputPath, cfg.Reset,
		classification.Options{Logger: logger, NumLabels: set.Len()})
	if err != nil {
		return nil, fmt.Errorf("failed to open classification store: %w", err)
	}

	logger.Info("session opened",
		zap.String("session_id", images.SessionID()),
		zap.Int("images", images.Len()),
		zap.Int("labels", set.Len()),
		zap.Int("window_height", cfg.Window.Height),
		zap.Int("window_width", cfg.Window.Width))

	return &Session{cfg: cfg, labels: set, images: images, classes: classes, logger: logger}, nil
}

func hasChunks(dir string) bool {
	files, _ := filepath.Glob(filepath.Join(dir, "*.npy"))
	return len(files) > 0
}

// Labels returns the session's label set
func (s *Session) Labels() *labels.Set {
	return s.labels
}

// Images returns the underlying image store
func (s *Session) Images() *imagestore.Store {
	return s.images
}

// Classifications returns the underlying classification store
func (s *Session) Classifications() *classification.Store {
	return s.classes
}

// WindowSize returns the grid cell size of the session
func (s *Session) WindowSize() types.WindowSize {
	return s.cfg.Window.Size()
}

// Len returns the number of image chunks
func (s *Session) Len() int {
	return s.images.Len()
}

// Image loads image chunk i
func (s *Session) Image(i int) (*raster.Raster, error) {
	return s.images.Get(i)
}

// Window returns the pixels of one window of image i
func (s *Session) Window(i int, c types.Coord) (*raster.Raster, error) {
	img, err := s.images.Get(i)
	if err != nil {
		return nil, err
	}
	return img.Window(c, s.WindowSize()), nil
}

// Select resolves a gesture on image i into the windows it covers
func (s *Session) Select(i int, g geometry.Gesture) ([]types.Coord, error) {
	h, w, err := s.dims(i)
	if err != nil {
		return nil, err
	}
	return geometry.Select(g, h, w, s.WindowSize())
}

// SelectRect returns the windows covered by the outline of the rectangle
// spanned by p1 and p2 on image i
func (s *Session) SelectRect(i int, p1, p2 types.Point) ([]types.Coord, error) {
	return s.Select(i, geometry.Gesture{Tool: geometry.ToolRect, Rect: geometry.RectFromPoints(p1, p2)})
}

// SelectPolygon returns the windows of image i whose centers lie inside the lasso
func (s *Session) SelectPolygon(i int, points []types.Point) ([]types.Coord, error) {
	return s.Select(i, geometry.Gesture{Tool: geometry.ToolLasso, Points: points})
}

// SelectBrush returns the windows of image i within radius windows of the
// window under center
func (s *Session) SelectBrush(i int, center types.Point, radius float64) ([]types.Coord, error) {
	return s.Select(i, geometry.Gesture{Tool: geometry.ToolBrush, Center: center, Radius: radius})
}

func (s *Session) dims(i int) (int, int, error) {
	e, err := s.images.Entry(i)
	if err != nil {
		return 0, 0, err
	}
	if len(e.Shape) >= 2 {
		return e.Shape[0], e.Shape[1], nil
	}
	img, err := s.images.Get(i)
	if err != nil {
		return 0, 0, err
	}
	return img.Height, img.Width, nil
}

// Annotate stores the windows at coords of image i under the named label
func (s *Session) Annotate(i int, coords []types.Coord, label string) (classification.AnnotateResult, error) {
	y, ok := s.labels.Index(label)
	if !ok {
		return classification.AnnotateResult{}, fmt.Errorf("%w: unknown label %q", types.ErrValidation, label)
	}
	img, err := s.images.Get(i)
	if err != nil {
		return classification.AnnotateResult{}, err
	}
	return s.classes.Annotate(i, img, coords, y, s.WindowSize())
}

// Erase removes the samples at coords of image i
func (s *Session) Erase(i int, coords []types.Coord) (int, error) {
	return s.classes.Erase(i, coords)
}

// Stats returns the number of stored samples per label name
func (s *Session) Stats() (map[string]int, error) {
	counts, err := s.classes.Counts()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, s.labels.Len())
	for _, name := range s.labels.Names() {
		y, _ := s.labels.Index(name)
		out[name] = counts[y]
	}
	return out, nil
}

// PreviewOptions control Session.Preview
type PreviewOptions struct {
	// MaxDim bounds the long side of the result; 0 keeps full size
	MaxDim int
	// Grid draws the window grid
	Grid bool
	// Opacity of the label tint, 0.35 when zero
	Opacity float64
}

// Preview renders image i with its labelled windows tinted by label.
func (s *Session) Preview(i int, opts PreviewOptions) (*image.NRGBA, error) {
	img, err := s.images.Get(i)
	if err != nil {
		return nil, err
	}
	samples, err := s.classes.Get(i)
	if err != nil {
		return nil, err
	}
	if opts.Opacity == 0 {
		opts.Opacity = 0.35
	}

	base := img.Preview(opts.MaxDim)
	scale := float64(base.Bounds().Dx()) / float64(img.Width)
	size := s.WindowSize()
	marks := make([]render.Mark, 0, samples.Len())
	for k, c := range samples.I {
		r := geometry.WindowRect(c, size)
		marks = append(marks, render.Mark{
			Rect: image.Rect(
				int(math.Round(r.X1*scale)), int(math.Round(r.Y1*scale)),
				int(math.Round(r.X2*scale)), int(math.Round(r.Y2*scale))),
			Label: samples.Y[k],
		})
	}
	out := render.Overlay(base, marks, opts.Opacity)
	if opts.Grid {
		render.Grid(out, float64(size.W)*scale, float64(size.H)*scale)
	}
	return out, nil
}

// Finalize merges all shards into the dataset artifact
func (s *Session) Finalize() (*classification.Dataset, error) {
	return s.classes.Finalize()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
