package imagestore

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeFile decodes an image file using the registered decoders, falling
// back to the libwebp decoder for files named .webp.
func DecodeFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err == nil {
		return img, nil
	}

	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, ferr := os.Open(path)
		if ferr != nil {
			return nil, ferr
		}
		defer f.Close()
		if img, werr := webp.Decode(f); werr == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s: %w", path, err)
}
