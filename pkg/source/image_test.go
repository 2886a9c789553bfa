package source

import (
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/df07/go-adaptive-sampler/pkg/core"
	"golang.org/x/image/bmp"
)

// writeTestImage saves a 2x2 white/red/green/blue image as BMP
func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bmp")

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(1, 0, color.RGBA{R: 255, A: 255})
	img.Set(0, 1, color.RGBA{G: 255, A: 255})
	img.Set(1, 1, color.RGBA{R: 128, G: 128, B: 128, A: 255})

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	if err := bmp.Encode(f, img); err != nil {
		f.Close()
		t.Fatalf("Failed to encode BMP: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close test file: %v", err)
	}
	return path
}

func TestLoadImage(t *testing.T) {
	data, err := LoadImage(writeTestImage(t))
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}

	if data.Width != 2 || data.Height != 2 {
		t.Errorf("Expected 2x2 image, got %dx%d", data.Width, data.Height)
	}
	if len(data.Pixels) != 4 {
		t.Fatalf("Expected 4 pixels, got %d", len(data.Pixels))
	}

	// Row-major, linearized with gamma 2
	gray := 128.0 / 255.0
	expected := []core.Vec3{
		core.NewVec3(1, 1, 1),
		core.NewVec3(1, 0, 0),
		core.NewVec3(0, 1, 0),
		core.NewVec3(gray*gray, gray*gray, gray*gray),
	}
	for i, want := range expected {
		if !data.Pixels[i].Equals(want, 0.01) {
			t.Errorf("Pixel %d: expected %v, got %v", i, want, data.Pixels[i])
		}
	}
}

func TestLoadImageNotFound(t *testing.T) {
	if _, err := LoadImage("nonexistent.png"); err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}
}

func TestImage_Sample(t *testing.T) {
	data, err := LoadImage(writeTestImage(t))
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	random := rand.New(rand.NewSource(3))

	// Four output pixels per texel: every sample of a pixel hits the same texel
	upscaled := NewImage(data, 4, 4)
	for i := 0; i < 100; i++ {
		if got := upscaled.Sample(3, 0, random); got != data.Pixels[1] {
			t.Fatalf("Expected red texel, got %v", got)
		}
	}

	// One output pixel covers all four texels
	downscaled := NewImage(data, 1, 1)
	seen := make(map[core.Vec3]bool)
	for i := 0; i < 200; i++ {
		seen[downscaled.Sample(0, 0, random)] = true
	}
	if len(seen) != 4 {
		t.Errorf("Expected samples from all 4 texels, got %d distinct values", len(seen))
	}
}
