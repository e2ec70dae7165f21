// Package shard stores the samples collected for one image.
//
// A shard is three .npy files sharing a prefix: <prefix>_X.npy holds the
// window pixels (n, win_h, win_w[, c]), <prefix>_Y.npy the label indices (n,)
// and <prefix>_I.npy the grid coordinates (n, 2). The three are always
// written together.
package shard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/menta2k/tako/internal/utils"
	"github.com/menta2k/tako/pkg/npy"
	"github.com/menta2k/tako/pkg/types"
)

// Suffixes of the three parts of a shard, in write order
const (
	SuffixX = "_X.npy"
	SuffixY = "_Y.npy"
	SuffixI = "_I.npy"
)

// Shard is the on-disk sample triple of one image.
type Shard struct {
	dir    string
	prefix string
}

// New returns the shard with the given file prefix inside dir. Nothing is
// created on disk.
func New(dir, prefix string) *Shard {
	return &Shard{dir: dir, prefix: prefix}
}

// Prefix returns the shared file name prefix
func (s *Shard) Prefix() string {
	return s.prefix
}

// Paths returns the X, Y and I file paths
func (s *Shard) Paths() (x, y, i string) {
	base := filepath.Join(s.dir, s.prefix)
	return base + SuffixX, base + SuffixY, base + SuffixI
}

// Exists reports whether all three parts are present
func (s *Shard) Exists() bool {
	x, y, i := s.Paths()
	return utils.FileExists(x) && utils.FileExists(y) && utils.FileExists(i)
}

// Any reports whether at least one part is present
func (s *Shard) Any() bool {
	x, y, i := s.Paths()
	return utils.FileExists(x) || utils.FileExists(y) || utils.FileExists(i)
}

// Reset replaces the shard with three empty arrays
func (s *Shard) Reset() error {
	return s.Write(&Samples{})
}

// Read loads the three parts. Parts that are missing, unreadable or of
// different lengths are reported as types.ErrCorruptShard.
func (s *Shard) Read() (*Samples, error) {
	xp, yp, ip := s.Paths()

	xShape, x, err := npy.LoadUint8(xp)
	if err != nil {
		return nil, s.corrupt(err)
	}
	yShape, y, err := npy.LoadInt64(yp)
	if err != nil {
		return nil, s.corrupt(err)
	}
	iShape, i, err := npy.LoadInt64(ip)
	if err != nil {
		return nil, s.corrupt(err)
	}

	if len(xShape) == 0 || len(yShape) != 1 || len(iShape) != 2 || iShape[1] != 2 {
		return nil, s.corrupt(fmt.Errorf("unexpected shapes X%v Y%v I%v", xShape, yShape, iShape))
	}
	n := yShape[0]
	if xShape[0] != n || iShape[0] != n {
		return nil, s.corrupt(fmt.Errorf("part lengths differ: X=%d Y=%d I=%d", xShape[0], n, iShape[0]))
	}

	out := &Samples{
		X: x,
		Y: make([]int, n),
		I: make([]types.Coord, n),
	}
	if n > 0 {
		out.WindowShape = xShape[1:]
	}
	for k := 0; k < n; k++ {
		out.Y[k] = int(y[k])
		out.I[k] = types.Coord{I: int(i[2*k]), J: int(i[2*k+1])}
	}
	if err := out.Validate(0); err != nil {
		return nil, s.corrupt(err)
	}
	return out, nil
}

// Write replaces the shard's contents. Inconsistent samples are rejected with
// types.ErrValidation before anything is written. Each part is written to a
// temporary file and renamed into place once all three are complete.
func (s *Shard) Write(samples *Samples) error {
	if err := samples.Validate(0); err != nil {
		return err
	}
	if err := utils.EnsureDir(s.dir); err != nil {
		return err
	}

	n := samples.Len()
	xShape := append([]int{n}, samples.WindowShape...)
	y := make([]int64, n)
	i := make([]int64, 2*n)
	for k := 0; k < n; k++ {
		y[k] = int64(samples.Y[k])
		i[2*k], i[2*k+1] = int64(samples.I[k].I), int64(samples.I[k].J)
	}

	xp, yp, ip := s.Paths()
	var batch utils.Batch
	stages := []struct {
		path  string
		write func(io.Writer) error
	}{
		{xp, func(w io.Writer) error { return npy.WriteUint8(w, xShape, samples.X) }},
		{yp, func(w io.Writer) error { return npy.WriteInt64(w, []int{n}, y) }},
		{ip, func(w io.Writer) error { return npy.WriteInt64(w, []int{n, 2}, i) }},
	}
	for _, st := range stages {
		if err := batch.Stage(st.path, st.write); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to write shard %s: %w", s.prefix, err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("failed to write shard %s: %w", s.prefix, err)
	}
	return nil
}

// Remove deletes the three parts, ignoring parts that are already gone
func (s *Shard) Remove() error {
	x, y, i := s.Paths()
	for _, p := range []string{x, y, i} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *Shard) corrupt(err error) error {
	return fmt.Errorf("%w: shard %s: %v", types.ErrCorruptShard, s.prefix, err)
}
