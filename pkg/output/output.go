// Package output writes rendered images to disk.
package output

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Encode writes img to w in the format named by ext (".png", ".tif", ".tiff" or ".bmp")
func Encode(w io.Writer, img image.Image, ext string) error {
	switch strings.ToLower(ext) {
	case ".png":
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		return enc.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case ".bmp":
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("unsupported image format %q", ext)
	}
}

// Save writes img to path, choosing the format from the file extension and
// creating parent directories as needed.
func Save(path string, img image.Image) (err error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return fmt.Errorf("output path %q has no extension", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := Encode(file, img, ext); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

// Scale resizes img by factor. Enlargements use nearest neighbour so each
// pixel (and each region outline) stays crisp; reductions use Catmull-Rom.
func Scale(img image.Image, factor float64) *image.RGBA {
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*factor+0.5))
	h := max(1, int(float64(b.Dy())*factor+0.5))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	var scaler xdraw.Scaler = xdraw.CatmullRom
	if factor >= 1 {
		scaler = xdraw.NearestNeighbor
	}
	scaler.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
