package imagestore

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menta2k/tako/pkg/npy"
	"github.com/menta2k/tako/pkg/raster"
	"github.com/menta2k/tako/pkg/types"
)

// createTestImage creates a gray gradient image
func createTestImage(width, height int) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	return img
}

// createSourceDir writes two PNG images and a non-image file
func createSourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, imaging.Save(createTestImage(40, 40), filepath.Join(dir, "a.png")))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, imaging.Save(createTestImage(20, 10), filepath.Join(dir, "nested", "b.png")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0644))
	return dir
}

func TestImport(t *testing.T) {
	src := createSourceDir(t)
	s, err := Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	// 40x40 gray is 1600 bytes -> 4 chunks at 400; 20x10 is 200 -> 1 chunk.
	stats, err := s.Import(src, 400, true)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 2, stats.Images)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []string{filepath.Join(src, "notes.txt")}, stats.SkippedFiles)
	assert.Equal(t, 5, stats.Chunks)
	assert.Equal(t, int64(1800), stats.Bytes)
	assert.Equal(t, 5, s.Len())

	first, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 20}, first.Shape())
	assert.Equal(t, uint8(0), first.Pix[0])

	second, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint8(20), second.Pix[0], "second chunk starts at x=20")

	e, err := s.Entry(4)
	require.NoError(t, err)
	assert.Equal(t, "0004.npy", e.File)
	assert.Equal(t, filepath.Join(src, "nested", "b.png"), e.Source)
	assert.Equal(t, image.Rect(0, 0, 20, 10), e.Rect)
}

func TestImportResetAndAppend(t *testing.T) {
	src := createSourceDir(t)
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = s.Import(src, 1<<20, true)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	firstSession := s.SessionID()

	_, err = s.Import(src, 1<<20, false)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, firstSession, s.SessionID())

	_, err = s.Import(src, 1<<20, true)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.NotEqual(t, firstSession, s.SessionID())

	files, _ := filepath.Glob(filepath.Join(s.Dir(), "*.npy"))
	assert.Len(t, files, 2)
}

func TestImportMissingSource(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = s.Import(filepath.Join(t.TempDir(), "missing"), 100, true)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestGetPutOutOfRange(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = s.Get(0)
	assert.True(t, errors.Is(err, types.ErrOutOfRange))
	assert.True(t, errors.Is(s.Put(-1, raster.New(1, 1, 1)), types.ErrOutOfRange))
}

func TestPutAndSharedDirectory(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	_, err = s.Import(createSourceDir(t), 1<<20, true)
	require.NoError(t, err)

	replacement := raster.New(3, 3, 3)
	replacement.Pix[0] = 42
	require.NoError(t, s.Put(1, replacement))

	other, err := Open(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, s.Len(), other.Len())
	got, err := other.Get(1)
	require.NoError(t, err)
	assert.True(t, got.Equal(replacement))
}

func TestAllIteratesInOrder(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = s.Import(createSourceDir(t), 400, true)
	require.NoError(t, err)

	for pass := 0; pass < 2; pass++ {
		n := 0
		for r, err := range s.All() {
			require.NoError(t, err)
			want, _ := s.Get(n)
			assert.True(t, r.Equal(want))
			n++
		}
		assert.Equal(t, s.Len(), n)
	}
}

func TestOpenAdoptsLegacyFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0001.npy", "0000.npy"} {
		require.NoError(t, npy.SaveUint8(filepath.Join(dir, name), []int{1, 2}, []uint8{1, 2}))
	}

	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	e, err := s.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, "0000.npy", e.File)
	assert.FileExists(t, filepath.Join(dir, "manifest.json"))
}

func TestOpenAdoptsLegacyFilesNumerically(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"10000.npy", "9999.npy"} {
		require.NoError(t, npy.SaveUint8(filepath.Join(dir, name), []int{1, 1}, []uint8{1}))
	}

	s, err := Open(dir, nil)
	require.NoError(t, err)
	e, err := s.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, "9999.npy", e.File)
	e, err = s.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, "10000.npy", e.File)
}

func TestAppendAfterGapKeepsAdoptedChunks(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, imaging.Save(createTestImage(40, 40), filepath.Join(src, "a.png")))
	dir := t.TempDir()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	_, err = s.Import(src, 400, true)
	require.NoError(t, err)
	require.Equal(t, 4, s.Len())

	// Lose the manifest and one chunk: adoption leaves 0000, 0002, 0003.
	require.NoError(t, os.Remove(filepath.Join(dir, "manifest.json")))
	require.NoError(t, os.Remove(filepath.Join(dir, "0001.npy")))
	s, err = Open(dir, nil)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	before, err := s.Get(2)
	require.NoError(t, err)

	_, err = s.Import(src, 400, false)
	require.NoError(t, err)
	require.Equal(t, 7, s.Len())

	files := make(map[string]int)
	for i := 0; i < s.Len(); i++ {
		e, err := s.Entry(i)
		require.NoError(t, err)
		prev, dup := files[e.File]
		assert.False(t, dup, "entries %d and %d share %s", prev, i, e.File)
		files[e.File] = i
	}
	e, err := s.Entry(3)
	require.NoError(t, err)
	assert.Equal(t, "0004.npy", e.File)

	after, err := s.Get(2)
	require.NoError(t, err)
	assert.True(t, before.Equal(after), "adopted chunk 0003 was overwritten")
}
