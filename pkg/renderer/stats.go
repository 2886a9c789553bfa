package renderer

import (
	"image"
	"time"

	"github.com/df07/go-adaptive-sampler/pkg/core"
)

// RenderStats contains statistics about the rendering process
type RenderStats struct {
	TotalPixels      int     // Total number of pixels in the image
	TotalSamples     int     // Total number of samples taken
	AverageSamples   float64 // Average samples per pixel
	MaxSamples       int     // Sample budget per pixel
	MinSamples       int     // Fewest samples any finalized region received
	MaxSamplesUsed   int     // Most samples any region received
	Rounds           int     // Rounds completed
	ActiveRegions    int     // Regions still being sampled
	ConvergedRegions int     // Regions finalized before the budget ran out
	FinalizedPixels  int     // Pixels whose output value is fixed
}

// RoundStats describes a single sampling round
type RoundStats struct {
	Round     int           // 1-based round number (= samples per active pixel)
	Regions   int           // Active regions sampled this round
	Samples   int           // Pixel samples taken this round
	Tested    bool          // Whether regions were classified after this round
	Converged int           // Regions finalized after this round
	Split     int           // Regions bisected after this round
	Retained  int           // Regions kept whole after this round
	Duration  time.Duration // Wall time for sampling and classification
}

// record folds one round into the running totals
func (s *RenderStats) record(rs RoundStats) {
	s.Rounds = rs.Round
	s.TotalSamples += rs.Samples
	s.MaxSamplesUsed = max(s.MaxSamplesUsed, rs.Round)
	if rs.Converged > 0 && (s.MinSamples == 0 || rs.Round < s.MinSamples) {
		s.MinSamples = rs.Round
	}
	s.ConvergedRegions += rs.Converged
	if s.TotalPixels > 0 {
		s.AverageSamples = float64(s.TotalSamples) / float64(s.TotalPixels)
	}
}

// CalculateAverageLuminance computes the average luminance of an image
// using Rec. 709 coefficients
func CalculateAverageLuminance(img image.Image) float64 {
	bounds := img.Bounds()
	if bounds.Empty() {
		return 0
	}

	var total float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			total += core.NewVec3(float64(r), float64(g), float64(b)).Multiply(1.0 / 65535).Luminance()
		}
	}
	return total / float64(bounds.Dx()*bounds.Dy())
}
