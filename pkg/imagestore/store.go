// Package imagestore keeps imported images as memory-bounded chunks on disk.
//
// Every chunk is one .npy file named by its zero-padded index. Indices are
// dense, start at zero and are shared by all source images of a directory.
// The list of chunks lives in the directory's manifest.
//
// A Store is a view over its content directory: two stores opened on the same
// directory read and write the same chunks. Only one of them may write during
// a session.
package imagestore

import (
	"fmt"
	"image"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/tako/internal/logging"
	"github.com/menta2k/tako/internal/manifest"
	"github.com/menta2k/tako/internal/utils"
	"github.com/menta2k/tako/pkg/npy"
	"github.com/menta2k/tako/pkg/raster"
	"github.com/menta2k/tako/pkg/subsection"
	"github.com/menta2k/tako/pkg/types"
)

const manifestKind = "image-chunks"

// Entry describes one persisted chunk.
type Entry struct {
	Index int    `json:"index"`
	File  string `json:"file"`
	// Source is the image file the chunk was cut from
	Source string `json:"source,omitempty"`
	// Rect locates the chunk inside the source image
	Rect  image.Rectangle `json:"rect"`
	Shape []int           `json:"shape,omitempty"`
}

// ImportStats summarizes one Import run.
type ImportStats struct {
	Files   int
	Images  int
	Skipped int
	Chunks  int
	Bytes   int64
	// SkippedFiles lists the files that could not be decoded
	SkippedFiles []string
}

// Store is an ordered, indexable collection of image chunks.
type Store struct {
	dir      string
	logger   *zap.Logger
	manifest *manifest.Manifest[Entry]
}

// Open opens the content directory dir, creating it if needed. Without a
// manifest, existing .npy files are adopted in numeric file name order, and
// chunks imported later are numbered after the highest adopted file.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	s := &Store{dir: dir, logger: logging.OrNop(logger).With(zap.String("store", "images"))}

	m, ok, err := manifest.Load[Entry](dir, manifestKind)
	if err != nil {
		return nil, err
	}
	if !ok {
		if m, err = discover(dir); err != nil {
			return nil, err
		}
		if len(m.Entries) > 0 {
			s.logger.Info("adopted chunks without manifest", zap.Int("chunks", len(m.Entries)))
			if err := m.Save(dir); err != nil {
				return nil, err
			}
		}
	}
	s.manifest = m
	return s, nil
}

func discover(dir string) (*manifest.Manifest[Entry], error) {
	m := manifest.New[Entry](manifestKind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list image directory: %w", err)
	}
	var stems []string
	for _, e := range entries {
		if stem, ok := strings.CutSuffix(e.Name(), ".npy"); ok && !e.IsDir() {
			stems = append(stems, stem)
		}
	}
	manifest.SortNames(stems)
	for k, stem := range stems {
		m.Entries = append(m.Entries, Entry{Index: k, File: stem + ".npy"})
	}
	return m, nil
}

// Dir returns the content directory
func (s *Store) Dir() string {
	return s.dir
}

// SessionID identifies the current generation of the directory
func (s *Store) SessionID() string {
	return s.manifest.SessionID
}

// Len returns the number of persisted chunks
func (s *Store) Len() int {
	return len(s.manifest.Entries)
}

// Import converts every decodable image under sourceDir into chunks of at
// most maxBytes. With reset the existing chunks are deleted first, otherwise
// new chunks are appended. Files that do not decode are skipped and counted.
func (s *Store) Import(sourceDir string, maxBytes int64, reset bool) (ImportStats, error) {
	var stats ImportStats
	if !utils.DirExists(sourceDir) {
		return stats, fmt.Errorf("%w: input directory %q does not exist", types.ErrConfiguration, sourceDir)
	}
	if maxBytes <= 0 {
		return stats, fmt.Errorf("%w: max chunk bytes must be positive", types.ErrConfiguration)
	}

	if reset {
		if err := utils.ClearDir(s.dir); err != nil {
			return stats, fmt.Errorf("failed to reset image directory: %w", err)
		}
		s.manifest = manifest.New[Entry](manifestKind)
		if err := s.manifest.Save(s.dir); err != nil {
			return stats, err
		}
	}

	files, err := utils.ListFiles(sourceDir)
	if err != nil {
		return stats, fmt.Errorf("failed to walk input directory: %w", err)
	}

	for _, path := range files {
		stats.Files++
		img, err := DecodeFile(path)
		if err != nil {
			stats.Skipped++
			stats.SkippedFiles = append(stats.SkippedFiles, path)
			s.logger.Info("skipping undecodable file", zap.String("path", path), zap.Error(err))
			continue
		}

		n, size, err := s.importImage(path, raster.FromImage(img), maxBytes)
		if err != nil {
			return stats, fmt.Errorf("failed to import %s: %w", path, err)
		}
		stats.Images++
		stats.Chunks += n
		stats.Bytes += size
	}

	s.logger.Info("import finished",
		zap.Int("files", stats.Files),
		zap.Int("images", stats.Images),
		zap.Int("skipped", stats.Skipped),
		zap.Int("chunks", stats.Chunks),
		zap.String("size", utils.FormatFileSize(stats.Bytes)))
	return stats, nil
}

// importImage persists every chunk of img and records them in the manifest
// once all of them are on disk.
func (s *Store) importImage(source string, img *raster.Raster, maxBytes int64) (int, int64, error) {
	plan, err := subsection.Split(img, maxBytes)
	if err != nil {
		return 0, 0, err
	}

	next := len(s.manifest.Entries)
	num := s.nextFileNumber()
	var added []Entry
	var size int64
	for _, chunk := range plan.Chunks() {
		for utils.FileExists(filepath.Join(s.dir, chunkFile(num))) {
			num++
		}
		e := Entry{
			Index:  next + len(added),
			File:   chunkFile(num),
			Source: source,
			Rect:   chunk.Rect,
			Shape:  chunk.Raster.Shape(),
		}
		if err := npy.SaveUint8(s.path(e), e.Shape, chunk.Raster.Pix); err != nil {
			return 0, 0, err
		}
		added = append(added, e)
		num++
		size += chunk.Raster.ByteSize()
	}

	s.manifest.Entries = append(s.manifest.Entries, added...)
	if err := s.manifest.Save(s.dir); err != nil {
		return 0, 0, err
	}
	s.logger.Debug("imported image",
		zap.String("path", source),
		zap.Int("division_factor", plan.DivisionFactor),
		zap.Int("chunks", len(added)))
	return len(added), size, nil
}

// Get loads chunk i
func (s *Store) Get(i int) (*raster.Raster, error) {
	e, err := s.Entry(i)
	if err != nil {
		return nil, err
	}
	shape, pix, err := npy.LoadUint8(s.path(e))
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk %d: %w", i, err)
	}
	return raster.FromShape(shape, pix)
}

// Put overwrites chunk i in place
func (s *Store) Put(i int, r *raster.Raster) error {
	e, err := s.Entry(i)
	if err != nil {
		return err
	}
	if err := npy.SaveUint8(s.path(e), r.Shape(), r.Pix); err != nil {
		return fmt.Errorf("failed to store chunk %d: %w", i, err)
	}
	s.manifest.Entries[i].Shape = r.Shape()
	return s.manifest.Save(s.dir)
}

// Entry returns the manifest record of chunk i
func (s *Store) Entry(i int) (Entry, error) {
	if i < 0 || i >= len(s.manifest.Entries) {
		return Entry{}, fmt.Errorf("%w: chunk %d of %d", types.ErrOutOfRange, i, len(s.manifest.Entries))
	}
	return s.manifest.Entries[i], nil
}

// All loads the chunks one at a time in index order. Iteration stops after
// the first error is yielded.
func (s *Store) All() iter.Seq2[*raster.Raster, error] {
	return func(yield func(*raster.Raster, error) bool) {
		for i := 0; i < s.Len(); i++ {
			r, err := s.Get(i)
			if !yield(r, err) || err != nil {
				return
			}
		}
	}
}

func (s *Store) path(e Entry) string {
	return filepath.Join(s.dir, e.File)
}

// nextFileNumber is one past the highest numbered chunk file in the manifest.
// It equals Len() unless the chunks were adopted with gaps in their numbering.
func (s *Store) nextFileNumber() int {
	stems := make([]string, len(s.manifest.Entries))
	for k, e := range s.manifest.Entries {
		stems[k] = strings.TrimSuffix(e.File, ".npy")
	}
	return manifest.NextNumber(stems)
}

func chunkFile(i int) string {
	return fmt.Sprintf("%04d.npy", i)
}
