package subsection

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/tako/pkg/raster"
	"github.com/menta2k/tako/pkg/types"
)

// createTestRaster fills a raster with a position dependent pattern
func createTestRaster(height, width, channels int) *raster.Raster {
	r := raster.New(height, width, channels)
	for k := range r.Pix {
		r.Pix[k] = uint8((k*31 + k/7) % 251)
	}
	return r
}

func collect(p *Plan) []Chunk {
	var out []Chunk
	for _, c := range p.Chunks() {
		out = append(out, c)
	}
	return out
}

func TestSplitNoDivisionNeeded(t *testing.T) {
	img := createTestRaster(40, 30, 3)
	p, err := Split(img, img.ByteSize())
	require.NoError(t, err)

	assert.Equal(t, 1, p.DivisionFactor)
	chunks := collect(p)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Raster.Equal(img))
}

func TestSplitQuarters(t *testing.T) {
	img := raster.New(2000, 2000, 1)
	p, err := Split(img, 1000*1000)
	require.NoError(t, err)

	assert.Equal(t, 2, p.DivisionFactor)
	chunks := collect(p)
	require.Len(t, chunks, 4)

	area := 0
	for _, c := range chunks {
		assert.Equal(t, 1000, c.Raster.Height)
		assert.Equal(t, 1000, c.Raster.Width)
		area += c.Raster.Height * c.Raster.Width
	}
	assert.Equal(t, 2000*2000, area)
}

func TestSplitRowMajorOrder(t *testing.T) {
	img := createTestRaster(9, 9, 1)
	p, err := Split(img, 9)
	require.NoError(t, err)
	require.Equal(t, 3, p.DivisionFactor)

	prev := p.Rects[0]
	for _, r := range p.Rects[1:] {
		if r.Min.Y == prev.Min.Y {
			assert.Greater(t, r.Min.X, prev.Min.X)
		} else {
			assert.Greater(t, r.Min.Y, prev.Min.Y)
		}
		prev = r
	}
}

func TestSplitRoundTripProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for n := 0; n < 200; n++ {
		h, w, c := 1+rng.Intn(60), 1+rng.Intn(60), []int{1, 3, 4}[rng.Intn(3)]
		img := createTestRaster(h, w, c)
		maxBytes := int64(c) + rng.Int63n(img.ByteSize())

		p, err := Split(img, maxBytes)
		require.NoError(t, err)

		chunks := collect(p)
		for _, ch := range chunks {
			require.LessOrEqual(t, ch.Raster.ByteSize(), maxBytes)
			require.False(t, ch.Rect.Empty())
		}

		back, err := Reassemble(h, w, c, chunks)
		require.NoError(t, err)
		require.True(t, back.Equal(img), "round trip failed for %dx%dx%d at %d bytes", h, w, c, maxBytes)
	}
}

func TestSplitUnevenRemainder(t *testing.T) {
	img := createTestRaster(7, 5, 1)
	p, err := Split(img, 12)
	require.NoError(t, err)

	assert.Equal(t, 2, p.DivisionFactor)
	widths := map[int]bool{}
	for _, r := range p.Rects {
		widths[r.Dx()] = true
	}
	assert.Equal(t, map[int]bool{2: true, 3: true}, widths)
}

func TestSplitNarrowStrip(t *testing.T) {
	img := createTestRaster(1, 100, 1)
	p, err := Split(img, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Rows)
	assert.Equal(t, 10, p.Cols)
	assert.Equal(t, 10, p.Len())
}

func TestSplitRestartable(t *testing.T) {
	img := createTestRaster(20, 20, 1)
	p, err := Split(img, 100)
	require.NoError(t, err)

	first, second := collect(p), collect(p)
	require.Equal(t, len(first), len(second))
	for k := range first {
		assert.Equal(t, first[k].Rect, second[k].Rect)
		assert.True(t, first[k].Raster.Equal(second[k].Raster))
	}
}

func TestSplitInvalid(t *testing.T) {
	_, err := Split(createTestRaster(4, 4, 3), 2)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = Split(createTestRaster(4, 4, 1), 0)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func BenchmarkSplit(b *testing.B) {
	img := createTestRaster(1024, 1024, 3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p, _ := Split(img, 256*1024)
		for range p.Chunks() {
		}
	}
}
