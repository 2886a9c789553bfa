package source

import (
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"math/rand"
	"os"

	"github.com/df07/go-adaptive-sampler/pkg/core"
	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
	_ "golang.org/x/image/webp" // WebP decoder
)

// ImageData contains loaded image data as a linear Vec3 color array
type ImageData struct {
	Width  int
	Height int
	Pixels []core.Vec3
}

// LoadImage loads a PNG, JPEG, TIFF, BMP or WebP image and converts it to linear
// colors (the inverse of the gamma 2 applied on output)
func LoadImage(filename string) (*ImageData, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	// Format is detected from the file header
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	pixels := make([]core.Vec3, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// RGBA returns uint32 in [0, 65535]
			c := core.NewVec3(float64(r)/65535.0, float64(g)/65535.0, float64(b)/65535.0)
			pixels[y*width+x] = c.MultiplyVec(c)
		}
	}

	return &ImageData{
		Width:  width,
		Height: height,
		Pixels: pixels,
	}, nil
}

// Image stretches a loaded picture over the output. Each sample reads the
// texel under a jittered point of the pixel footprint, so output pixels that
// cover a single texel are noise free and pixels straddling texel edges are not.
type Image struct {
	Width, Height int
	Texels        *ImageData
}

// NewImage creates a source that resamples data to width x height
func NewImage(data *ImageData, width, height int) *Image {
	return &Image{Width: width, Height: height, Texels: data}
}

func (im *Image) Sample(x, y int, random *rand.Rand) core.Vec3 {
	tx := int((float64(x) + random.Float64()) * float64(im.Texels.Width) / float64(im.Width))
	ty := int((float64(y) + random.Float64()) * float64(im.Texels.Height) / float64(im.Height))
	tx = min(max(tx, 0), im.Texels.Width-1)
	ty = min(max(ty, 0), im.Texels.Height-1)
	return im.Texels.Pixels[ty*im.Texels.Width+tx]
}
