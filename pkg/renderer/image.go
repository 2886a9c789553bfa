package renderer

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/df07/go-adaptive-sampler/pkg/adaptive"
	"github.com/df07/go-adaptive-sampler/pkg/core"
)

// vec3ToColor converts a Vec3 color to RGBA with proper clamping and gamma correction
func vec3ToColor(colorVec core.Vec3) color.RGBA {
	// Apply gamma correction (gamma = 2.0)
	colorVec = colorVec.GammaCorrect(2.0)

	// Clamp to valid color range
	colorVec = colorVec.Clamp(0.0, 1.0)

	return color.RGBA{
		R: uint8(255 * colorVec.X),
		G: uint8(255 * colorVec.Y),
		B: uint8(255 * colorVec.Z),
		A: 255,
	}
}

// heatColor maps t in [0, 1] from blue (few samples) to red (full budget)
func heatColor(t float64) color.RGBA {
	t = max(0, min(1, t))
	r, g, b := colorful.Hsv(240*(1-t), 1, 1).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// ToImage converts a finalized buffer into a gamma-corrected RGBA image
func ToImage(buf *adaptive.Buffer) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			img.SetRGBA(x, y, vec3ToColor(buf.At(x, y)))
		}
	}
	return img
}

// HeatMap renders a buffer finalized in DebugSampleCount mode. Each pixel
// holds samples taken / sample budget, which is mapped onto a color ramp.
func HeatMap(buf *adaptive.Buffer) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			img.SetRGBA(x, y, heatColor(buf.At(x, y).X))
		}
	}
	return img
}

// RegionOverlay returns a copy of img with the outline of every region drawn
// in c. Regions are clipped to the image.
func RegionOverlay(img image.Image, regions []adaptive.Region, c color.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)

	for _, r := range regions {
		b := r.Bounds().Intersect(out.Bounds())
		if b.Empty() {
			continue
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetRGBA(x, b.Min.Y, c)
			out.SetRGBA(x, b.Max.Y-1, c)
		}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			out.SetRGBA(b.Min.X, y, c)
			out.SetRGBA(b.Max.X-1, y, c)
		}
	}
	return out
}
