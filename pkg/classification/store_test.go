package classification

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menta2k/tako/pkg/npy"
	"github.com/menta2k/tako/pkg/raster"
	"github.com/menta2k/tako/pkg/shard"
	"github.com/menta2k/tako/pkg/types"
)

type fakeImages int

func (f fakeImages) Len() int { return int(f) }

func (f fakeImages) SessionID() string { return "images-session" }

// reimported stands for the same images after a fresh import
type reimported struct{ fakeImages }

func (reimported) SessionID() string { return "another-session" }

var win = types.WindowSize{H: 2, W: 2}

// createTestChunk returns a raster whose pixel values encode their position
func createTestChunk(h, w int) *raster.Raster {
	r := raster.New(h, w, 1)
	for k := range r.Pix {
		r.Pix[k] = uint8(k)
	}
	return r
}

func openStore(t *testing.T, images int, reset bool) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(fakeImages(images), dir, filepath.Join(t.TempDir(), "out.npy"), reset, Options{Logger: zap.NewNop(), NumLabels: 3})
	require.NoError(t, err)
	return s, dir
}

func TestOpenResetCreatesEmptyShards(t *testing.T) {
	s, dir := openStore(t, 3, true)
	assert.Equal(t, 3, s.Len())

	for i := 0; i < 3; i++ {
		samples, err := s.Get(i)
		require.NoError(t, err)
		assert.Equal(t, 0, samples.Len())
	}
	assert.FileExists(t, filepath.Join(dir, "0002_I.npy"))
}

func TestResetTruncatesExistingShards(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	s, err := Open(fakeImages(5), dir, out, true, Options{})
	require.NoError(t, err)
	chunk := createTestChunk(4, 4)
	for i := 0; i < 5; i++ {
		_, err := s.Annotate(i, chunk, []types.Coord{{I: 0, J: 0}, {I: 1, J: 1}}, 1, win)
		require.NoError(t, err)
	}

	s, err = Open(fakeImages(5), dir, out, true, Options{})
	require.NoError(t, err)
	require.Equal(t, 5, s.Len())
	for i := 0; i < 5; i++ {
		samples, err := s.Get(i)
		require.NoError(t, err)
		assert.Equal(t, 0, samples.Len(), "shard %d", i)
	}
}

func TestReopenKeepsSamplesAndAddsShards(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	s, err := Open(fakeImages(2), dir, out, true, Options{})
	require.NoError(t, err)
	_, err = s.Annotate(1, createTestChunk(4, 4), []types.Coord{{I: 1, J: 0}}, 2, win)
	require.NoError(t, err)

	s, err = Open(fakeImages(4), dir, out, false, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	samples, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, samples.Y)
	assert.Equal(t, []types.Coord{{I: 1, J: 0}}, samples.I)
}

func TestDiscoverWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	for _, prefix := range []string{"0010", "0002"} {
		require.NoError(t, shard.New(dir, prefix).Reset())
	}

	s, err := Open(fakeImages(0), dir, filepath.Join(dir, "..", "out"), false, Options{})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	sh, err := s.Shard(0)
	require.NoError(t, err)
	assert.Equal(t, "0002", sh.Prefix())
}

func TestDiscoverOrdersPrefixesNumerically(t *testing.T) {
	dir := t.TempDir()
	for _, prefix := range []string{"10000", "9999"} {
		require.NoError(t, shard.New(dir, prefix).Reset())
	}

	s, err := Open(fakeImages(3), dir, filepath.Join(t.TempDir(), "out"), false, Options{})
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	var prefixes []string
	for i := 0; i < s.Len(); i++ {
		sh, err := s.Shard(i)
		require.NoError(t, err)
		prefixes = append(prefixes, sh.Prefix())
	}
	assert.Equal(t, []string{"9999", "10000", "10001"}, prefixes)
}

func TestDiscoverWithGapDoesNotReuseNames(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	s, err := Open(fakeImages(3), dir, out, true, Options{})
	require.NoError(t, err)
	_, err = s.Annotate(2, createTestChunk(4, 4), []types.Coord{{I: 1, J: 1}}, 1, win)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "manifest.json")))
	require.NoError(t, shard.New(dir, "0001").Remove())

	s, err = Open(fakeImages(3), dir, out, false, Options{})
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	seen := make(map[string]bool)
	total := 0
	for i := 0; i < s.Len(); i++ {
		sh, err := s.Shard(i)
		require.NoError(t, err)
		assert.False(t, seen[sh.Prefix()], "prefix %s used twice", sh.Prefix())
		seen[sh.Prefix()] = true
		samples, err := sh.Read()
		require.NoError(t, err)
		total += samples.Len()
	}
	assert.Equal(t, 1, total, "the labelled sample survives")
	assert.True(t, seen["0003"])
}

func TestReopenRejectsOtherImageSession(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	_, err := Open(fakeImages(2), dir, out, true, Options{})
	require.NoError(t, err)

	_, err = Open(reimported{2}, dir, out, false, Options{})
	assert.True(t, errors.Is(err, types.ErrCorruptShard))

	s, err := Open(reimported{2}, dir, out, true, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	_, err = Open(reimported{2}, dir, out, false, Options{})
	require.NoError(t, err)
}

func TestAnnotateRejectsWindowsOutsideGrid(t *testing.T) {
	s, _ := openStore(t, 1, true)
	chunk := createTestChunk(4, 5) // 2x3 grid of 2x2 windows

	_, err := s.Annotate(0, chunk, []types.Coord{{I: 0, J: 0}, {I: 2, J: 0}}, 1, win)
	assert.True(t, errors.Is(err, types.ErrValidation))
	_, err = s.Annotate(0, chunk, []types.Coord{{I: 0, J: -1}}, 1, win)
	assert.True(t, errors.Is(err, types.ErrValidation))

	samples, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 0, samples.Len(), "nothing is stored from a rejected call")

	res, err := s.Annotate(0, chunk, []types.Coord{{I: 1, J: 2}}, 1, win)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added, "partial edge window is inside the grid")
}

func TestDiscoverIncompleteTriple(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, shard.New(dir, "0000").Reset())
	require.NoError(t, os.Remove(filepath.Join(dir, "0000_Y.npy")))

	_, err := Open(fakeImages(1), dir, "out", false, Options{})
	assert.True(t, errors.Is(err, types.ErrCorruptShard))
}

func TestOutOfRange(t *testing.T) {
	s, _ := openStore(t, 2, true)

	_, err := s.Get(2)
	assert.True(t, errors.Is(err, types.ErrOutOfRange))
	_, err = s.Shard(-1)
	assert.True(t, errors.Is(err, types.ErrOutOfRange))
	assert.True(t, errors.Is(s.Set(5, &shard.Samples{}), types.ErrOutOfRange))
}

func TestAnnotateUpsertsAndErase(t *testing.T) {
	s, _ := openStore(t, 1, true)
	chunk := createTestChunk(4, 4)

	res, err := s.Annotate(0, chunk, []types.Coord{{I: 0, J: 0}, {I: 0, J: 1}}, 0, win)
	require.NoError(t, err)
	assert.Equal(t, AnnotateResult{Added: 2}, res)

	res, err = s.Annotate(0, chunk, []types.Coord{{I: 0, J: 1}, {I: 1, J: 1}}, 2, win)
	require.NoError(t, err)
	assert.Equal(t, AnnotateResult{Added: 1, Replaced: 1}, res)

	samples, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 2}, samples.Y)
	assert.Equal(t, []int{2, 2}, samples.WindowShape)

	// Window (0,1) covers pixels (x=2..3, y=0..1) of the 4x4 chunk.
	w, err := samples.At(1)
	require.NoError(t, err)
	assert.Equal(t, []uint8{2, 3, 6, 7}, w.X.Pix)

	_, err = s.Annotate(0, chunk, []types.Coord{{I: 0, J: 0}}, 3, win)
	assert.True(t, errors.Is(err, types.ErrValidation))

	n, err := s.Erase(0, []types.Coord{{I: 0, J: 0}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[int]int{2: 2}, counts)
}

func TestFinalizeConcatenatesInShardOrder(t *testing.T) {
	s, _ := openStore(t, 3, true)
	chunk := createTestChunk(4, 4)

	_, err := s.Annotate(2, chunk, []types.Coord{{I: 1, J: 1}}, 2, win)
	require.NoError(t, err)
	_, err = s.Annotate(0, chunk, []types.Coord{{I: 0, J: 0}, {I: 1, J: 0}}, 1, win)
	require.NoError(t, err)

	ds, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []int{1, 1, 2}, ds.Y)
	assert.Equal(t, []types.Coord{{I: 0, J: 0}, {I: 1, J: 0}, {I: 1, J: 1}}, ds.I)

	shape, x, err := npy.LoadUint8(ds.PathX)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 2}, shape)
	assert.Equal(t, ds.X, x)
	assert.Equal(t, s.OutputPath()+"_Y.npy", ds.PathY)

	again, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, ds.Samples, again.Samples)
}

func TestFinalizeSampleCountProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	s, _ := openStore(t, 6, true)
	chunk := createTestChunk(16, 16)

	total := 0
	var wantOrder []types.Coord
	for i := 0; i < s.Len(); i++ {
		var coords []types.Coord
		n := rng.Intn(5)
		for k := 0; k < n; k++ {
			coords = append(coords, types.Coord{I: k, J: i})
		}
		_, err := s.Annotate(i, chunk, coords, rng.Intn(3), win)
		require.NoError(t, err)
		total += len(coords)
		wantOrder = append(wantOrder, coords...)
	}

	ds, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, total, ds.Len())
	if total > 0 {
		assert.Equal(t, wantOrder, ds.I)
	}
}

func TestFinalizeFailureKeepsPreviousArtifact(t *testing.T) {
	s, dir := openStore(t, 2, true)
	chunk := createTestChunk(4, 4)
	_, err := s.Annotate(0, chunk, []types.Coord{{I: 0, J: 0}}, 1, win)
	require.NoError(t, err)

	first, err := s.Finalize()
	require.NoError(t, err)
	before, err := os.ReadFile(first.PathX)
	require.NoError(t, err)

	// Corrupt shard 1 so the next merge cannot complete.
	require.NoError(t, npy.SaveInt64(filepath.Join(dir, "0001_Y.npy"), []int{2}, []int64{0, 0}))

	_, err = s.Finalize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrCorruptShard))

	after, err := os.ReadFile(first.PathX)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFinalizeRejectsMixedWindowShapes(t *testing.T) {
	s, _ := openStore(t, 2, true)
	chunk := createTestChunk(8, 8)
	_, err := s.Annotate(0, chunk, []types.Coord{{I: 0, J: 0}}, 0, win)
	require.NoError(t, err)
	_, err = s.Annotate(1, chunk, []types.Coord{{I: 0, J: 0}}, 0, types.WindowSize{H: 4, W: 4})
	require.NoError(t, err)

	_, err = s.Finalize()
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestFinalizeEmpty(t *testing.T) {
	s, _ := openStore(t, 2, true)
	ds, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	assert.FileExists(t, ds.PathI)
}
