package shard

import (
	"fmt"
	"slices"

	"github.com/menta2k/tako/pkg/raster"
	"github.com/menta2k/tako/pkg/types"
)

// Sample is one labelled window.
type Sample struct {
	X *raster.Raster
	Y int
	I types.Coord
}

// Samples holds the three parallel sequences of a shard. X is the window
// pixels of every sample laid end to end, each window of WindowShape
// (win_h, win_w[, channels]). WindowShape is empty while there are no samples.
type Samples struct {
	WindowShape []int
	X           []uint8
	Y           []int
	I           []types.Coord
}

// Len returns the number of samples
func (s *Samples) Len() int {
	return len(s.Y)
}

func (s *Samples) windowLen() int {
	n := 1
	for _, d := range s.WindowShape {
		n *= d
	}
	return n
}

// Validate checks that the three sequences agree. nLabels bounds the label
// indices unless it is zero or negative.
func (s *Samples) Validate(nLabels int) error {
	if len(s.I) != len(s.Y) {
		return fmt.Errorf("%w: %d labels but %d coordinates", types.ErrValidation, len(s.Y), len(s.I))
	}
	if len(s.Y) == 0 {
		if len(s.X) != 0 {
			return fmt.Errorf("%w: %d pixel samples without labels", types.ErrValidation, len(s.X))
		}
		return nil
	}
	if len(s.WindowShape) < 2 || len(s.WindowShape) > 3 {
		return fmt.Errorf("%w: window shape %v must have 2 or 3 dimensions", types.ErrValidation, s.WindowShape)
	}
	if want := len(s.Y) * s.windowLen(); len(s.X) != want {
		return fmt.Errorf("%w: %d labels need %d pixel samples, got %d", types.ErrValidation, len(s.Y), want, len(s.X))
	}
	if nLabels > 0 {
		for k, y := range s.Y {
			if y < 0 || y >= nLabels {
				return fmt.Errorf("%w: sample %d has label %d outside [0, %d)", types.ErrValidation, k, y, nLabels)
			}
		}
	}
	return nil
}

// At returns sample k
func (s *Samples) At(k int) (Sample, error) {
	if k < 0 || k >= s.Len() {
		return Sample{}, fmt.Errorf("%w: sample %d of %d", types.ErrOutOfRange, k, s.Len())
	}
	n := s.windowLen()
	x, err := raster.FromShape(s.WindowShape, slices.Clone(s.X[k*n:(k+1)*n]))
	if err != nil {
		return Sample{}, err
	}
	return Sample{X: x, Y: s.Y[k], I: s.I[k]}, nil
}

// Append adds a sample at the end.
func (s *Samples) Append(sample Sample) error {
	if err := s.accept(sample); err != nil {
		return err
	}
	s.X = append(s.X, sample.X.Pix...)
	s.Y = append(s.Y, sample.Y)
	s.I = append(s.I, sample.I)
	return nil
}

// Upsert replaces the sample at the same grid coordinate, or appends it.
// It reports whether an existing sample was overwritten.
func (s *Samples) Upsert(sample Sample) (bool, error) {
	k := slices.Index(s.I, sample.I)
	if k < 0 {
		return false, s.Append(sample)
	}
	if err := s.accept(sample); err != nil {
		return false, err
	}
	n := s.windowLen()
	copy(s.X[k*n:(k+1)*n], sample.X.Pix)
	s.Y[k] = sample.Y
	return true, nil
}

// Remove drops the samples at the given coordinates, keeping the order of
// the rest. It returns how many samples were removed.
func (s *Samples) Remove(coords ...types.Coord) int {
	drop := make(map[types.Coord]bool, len(coords))
	for _, c := range coords {
		drop[c] = true
	}
	n := s.windowLen()
	kept := 0
	for k := range s.Y {
		if drop[s.I[k]] {
			continue
		}
		if kept != k {
			copy(s.X[kept*n:(kept+1)*n], s.X[k*n:(k+1)*n])
			s.Y[kept] = s.Y[k]
			s.I[kept] = s.I[k]
		}
		kept++
	}
	removed := len(s.Y) - kept
	s.X, s.Y, s.I = s.X[:kept*n], s.Y[:kept], s.I[:kept]
	if kept == 0 {
		s.WindowShape, s.X = nil, nil
	}
	return removed
}

// Counts returns the number of samples per label index
func (s *Samples) Counts() map[int]int {
	out := make(map[int]int)
	for _, y := range s.Y {
		out[y]++
	}
	return out
}

func (s *Samples) accept(sample Sample) error {
	if sample.X == nil {
		return fmt.Errorf("%w: sample without pixels", types.ErrValidation)
	}
	shape := sample.X.Shape()
	if s.Len() == 0 {
		s.WindowShape = shape
		return nil
	}
	if !slices.Equal(shape, s.WindowShape) {
		return fmt.Errorf("%w: window shape %v differs from %v", types.ErrValidation, shape, s.WindowShape)
	}
	return nil
}
