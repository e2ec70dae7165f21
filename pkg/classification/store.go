// Package classification keeps one sample shard per image and merges them
// into the dataset artifact.
//
// Shards share the index space of the image store they were opened against:
// shard i holds the samples taken from image chunk i. The merge is explicit:
// nothing is written to the output path until Finalize is called.
package classification

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/tako/internal/logging"
	"github.com/menta2k/tako/internal/manifest"
	"github.com/menta2k/tako/internal/utils"
	"github.com/menta2k/tako/pkg/geometry"
	"github.com/menta2k/tako/pkg/raster"
	"github.com/menta2k/tako/pkg/shard"
	"github.com/menta2k/tako/pkg/types"
)

const manifestKind = "classification-shards"

// Images is the part of an image store the classification store needs.
// SessionID identifies the import generation the shards are built against.
type Images interface {
	Len() int
	SessionID() string
}

// Options configures a Store
type Options struct {
	Logger *zap.Logger
	// NumLabels bounds the label index of every stored sample when positive
	NumLabels int
}

// Entry describes one shard in the manifest
type Entry struct {
	Index  int    `json:"index"`
	Prefix string `json:"prefix"`
}

// Dataset is the merged artifact written by Finalize.
type Dataset struct {
	shard.Samples
	PathX string
	PathY string
	PathI string
}

// AnnotateResult reports what an Annotate call changed
type AnnotateResult struct {
	Added    int
	Replaced int
}

// Store owns the shards of one classification directory.
type Store struct {
	dir      string
	output   string
	opts     Options
	logger   *zap.Logger
	manifest *manifest.Manifest[Entry]
}

// Open opens the classification directory dir for the images of images.
// With reset every shard is deleted and one empty shard is created per image.
// Otherwise shards are read from the manifest, or discovered from complete
// _X/_Y/_I triples in numeric prefix order when there is none, and empty
// shards are added for images that do not have one yet. New shards are
// numbered after the highest existing prefix. A manifest recorded against a
// different image session is rejected with types.ErrCorruptShard.
func Open(images Images, dir, outputPath string, reset bool, opts Options) (*Store, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create classification directory: %w", err)
	}
	s := &Store{
		dir:    dir,
		output: strings.TrimSuffix(outputPath, ".npy"),
		opts:   opts,
		logger: logging.OrNop(opts.Logger).With(zap.String("store", "classifications")),
	}

	if reset {
		if err := utils.ClearDir(dir); err != nil {
			return nil, fmt.Errorf("failed to reset classification directory: %w", err)
		}
		s.manifest = manifest.New[Entry](manifestKind)
	} else {
		m, ok, err := manifest.Load[Entry](dir, manifestKind)
		if err != nil {
			return nil, err
		}
		if !ok {
			if m, err = discover(dir); err != nil {
				return nil, err
			}
		}
		if m.Source != "" && m.Source != images.SessionID() {
			return nil, fmt.Errorf("%w: shards in %s were built for image session %s, images are from session %s; reopen with reset",
				types.ErrCorruptShard, dir, m.Source, images.SessionID())
		}
		s.manifest = m
	}
	s.manifest.Source = images.SessionID()

	created := 0
	num := s.nextPrefixNumber()
	for i := s.Len(); i < images.Len(); i++ {
		for shard.New(dir, fmt.Sprintf("%04d", num)).Any() {
			num++
		}
		e := Entry{Index: i, Prefix: fmt.Sprintf("%04d", num)}
		num++
		if err := shard.New(dir, e.Prefix).Reset(); err != nil {
			return nil, err
		}
		s.manifest.Entries = append(s.manifest.Entries, e)
		created++
	}
	if err := s.manifest.Save(dir); err != nil {
		return nil, err
	}
	if s.Len() > images.Len() {
		s.logger.Warn("more shards than images", zap.Int("shards", s.Len()), zap.Int("images", images.Len()))
	}
	s.logger.Info("classification store opened",
		zap.Bool("reset", reset), zap.Int("shards", s.Len()), zap.Int("created", created))
	return s, nil
}

// discover groups the files of dir into shards by their prefix. Every
// prefix must have all three parts.
func discover(dir string) (*manifest.Manifest[Entry], error) {
	m := manifest.New[Entry](manifestKind)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list classification directory: %w", err)
	}

	parts := make(map[string]int)
	for _, f := range files {
		for _, suffix := range []string{shard.SuffixX, shard.SuffixY, shard.SuffixI} {
			if prefix, ok := strings.CutSuffix(f.Name(), suffix); ok && !f.IsDir() {
				parts[prefix]++
			}
		}
	}
	prefixes := make([]string, 0, len(parts))
	for prefix, n := range parts {
		if n != 3 {
			return nil, fmt.Errorf("%w: shard %s has %d of 3 parts", types.ErrCorruptShard, prefix, n)
		}
		prefixes = append(prefixes, prefix)
	}
	manifest.SortNames(prefixes)
	for k, prefix := range prefixes {
		m.Entries = append(m.Entries, Entry{Index: k, Prefix: prefix})
	}
	return m, nil
}

// nextPrefixNumber is one past the highest numbered shard prefix
func (s *Store) nextPrefixNumber() int {
	prefixes := make([]string, len(s.manifest.Entries))
	for k, e := range s.manifest.Entries {
		prefixes[k] = e.Prefix
	}
	return manifest.NextNumber(prefixes)
}

// Len returns the number of shards
func (s *Store) Len() int {
	return len(s.manifest.Entries)
}

// OutputPath is the artifact prefix; Finalize appends _X.npy, _Y.npy and _I.npy
func (s *Store) OutputPath() string {
	return s.output
}

// Shard returns shard i
func (s *Store) Shard(i int) (*shard.Shard, error) {
	if i < 0 || i >= s.Len() {
		return nil, fmt.Errorf("%w: shard %d of %d", types.ErrOutOfRange, i, s.Len())
	}
	return shard.New(s.dir, s.manifest.Entries[i].Prefix), nil
}

// Get reads the samples of shard i
func (s *Store) Get(i int) (*shard.Samples, error) {
	sh, err := s.Shard(i)
	if err != nil {
		return nil, err
	}
	return sh.Read()
}

// Set replaces the samples of shard i
func (s *Store) Set(i int, samples *shard.Samples) error {
	sh, err := s.Shard(i)
	if err != nil {
		return err
	}
	if err := samples.Validate(s.opts.NumLabels); err != nil {
		return err
	}
	return sh.Write(samples)
}

// Annotate labels the windows at coords of image i. The pixels are cut from
// chunk; a window that already has a sample is overwritten. Coordinates
// outside the chunk's window grid are rejected before anything is stored.
func (s *Store) Annotate(i int, chunk *raster.Raster, coords []types.Coord, label int, size types.WindowSize) (AnnotateResult, error) {
	var res AnnotateResult
	if s.opts.NumLabels > 0 && (label < 0 || label >= s.opts.NumLabels) {
		return res, fmt.Errorf("%w: label %d outside [0, %d)", types.ErrValidation, label, s.opts.NumLabels)
	}
	if size.H < 1 || size.W < 1 {
		return res, fmt.Errorf("%w: window size %dx%d", types.ErrConfiguration, size.H, size.W)
	}
	rows, cols := geometry.GridDims(chunk.Height, chunk.Width, size)
	for _, c := range coords {
		if c.I < 0 || c.J < 0 || c.I >= rows || c.J >= cols {
			return res, fmt.Errorf("%w: window %v outside the %dx%d grid of image %d",
				types.ErrValidation, c, rows, cols, i)
		}
	}
	samples, err := s.Get(i)
	if err != nil {
		return res, err
	}
	for _, c := range coords {
		replaced, err := samples.Upsert(shard.Sample{X: chunk.Window(c, size), Y: label, I: c})
		if err != nil {
			return AnnotateResult{}, err
		}
		if replaced {
			res.Replaced++
		} else {
			res.Added++
		}
	}
	if err := s.Set(i, samples); err != nil {
		return AnnotateResult{}, err
	}
	s.logger.Debug("annotated windows",
		zap.Int("image", i), zap.Int("label", label),
		zap.Int("added", res.Added), zap.Int("replaced", res.Replaced))
	return res, nil
}

// Erase removes the samples at coords from shard i
func (s *Store) Erase(i int, coords []types.Coord) (int, error) {
	samples, err := s.Get(i)
	if err != nil {
		return 0, err
	}
	n := samples.Remove(coords...)
	if n == 0 {
		return 0, nil
	}
	return n, s.Set(i, samples)
}

// Counts returns the number of samples per label index over all shards
func (s *Store) Counts() (map[int]int, error) {
	out := make(map[int]int)
	for i := 0; i < s.Len(); i++ {
		samples, err := s.Get(i)
		if err != nil {
			return nil, err
		}
		for y, n := range samples.Counts() {
			out[y] += n
		}
	}
	return out, nil
}

// Finalize merges every shard, in index order, into the dataset artifact.
// The merged arrays are staged next to the output and only moved into place
// once all three are written, so a failure leaves any previous artifact as it
// was. Calling Finalize again rebuilds the same artifact from the shards.
func (s *Store) Finalize() (*Dataset, error) {
	var merged shard.Samples
	for i := 0; i < s.Len(); i++ {
		samples, err := s.Get(i)
		if err != nil {
			return nil, fmt.Errorf("finalize aborted: %w", err)
		}
		if samples.Len() == 0 {
			continue
		}
		if merged.Len() > 0 && !slices.Equal(merged.WindowShape, samples.WindowShape) {
			return nil, fmt.Errorf("%w: finalize aborted: shard %d has window shape %v, want %v",
				types.ErrValidation, i, samples.WindowShape, merged.WindowShape)
		}
		merged.WindowShape = samples.WindowShape
		merged.X = append(merged.X, samples.X...)
		merged.Y = append(merged.Y, samples.Y...)
		merged.I = append(merged.I, samples.I...)
	}
	if err := merged.Validate(s.opts.NumLabels); err != nil {
		return nil, fmt.Errorf("finalize aborted: %w", err)
	}

	out := shard.New(filepath.Dir(s.output), filepath.Base(s.output))
	if err := out.Write(&merged); err != nil {
		return nil, fmt.Errorf("finalize aborted: %w", err)
	}

	ds := &Dataset{Samples: merged}
	ds.PathX, ds.PathY, ds.PathI = out.Paths()
	s.logger.Info("dataset finalized",
		zap.Int("shards", s.Len()), zap.Int("samples", merged.Len()), zap.String("output", s.output))
	return ds, nil
}
