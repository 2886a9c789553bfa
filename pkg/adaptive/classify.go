package adaptive

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SplitLimit is the multiple of the min variance below which a region that
// has not converged is still quiet enough to bisect. Noisier regions are
// kept whole for another round.
const SplitLimit = 256

// Classification is the outcome of testing one region for convergence.
// It is only meaningful for the round it was computed in.
type Classification struct {
	ErrorScore    float64
	Converged     bool // Finalize and drop the region
	ShouldSplit   bool // Bisect at (SplitAxis, SplitPosition)
	SplitAxis     Axis
	SplitPosition int
}

// Classify scores the noise in region r after s samples and decides whether
// it has converged, should be split, or stays as is.
//
// The per-pixel estimate compares the full sum in primary against twice the
// half-sample sum in secondary, weighted by the region's share of the image
// and normalized by the square root of the pixel's brightness. Pixels that
// are still black skip the normalization. A splittable region is cut along
// its wider side at the coordinate that halves the accumulated error.
func Classify(r Region, s, width, height int, minVariance float64, primary, secondary *Buffer) Classification {
	var c Classification
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 || s <= 0 {
		return c
	}

	n := float64(w) * float64(h)
	areaRatio := math.Sqrt(n / (float64(width) * float64(height)))
	scale := areaRatio / (float64(s) * n)

	// errs is row-major within the region
	errs := make([]float64, w*h)
	for j := r.StartY; j < r.EndY; j++ {
		for i := r.StartX; i < r.EndX; i++ {
			p := primary.At(i, j)
			d := p.AbsDiffSum(secondary.At(i, j).Multiply(2)) * scale
			if norm := math.Sqrt(p.Sum()); norm != 0 {
				d /= norm
			}
			errs[(j-r.StartY)*w+(i-r.StartX)] = d
		}
	}

	c.ErrorScore = floats.Sum(errs)
	switch {
	case c.ErrorScore < minVariance:
		c.Converged = true
	case c.ErrorScore < minVariance*SplitLimit:
		c.ShouldSplit = true
		if w >= h {
			c.SplitAxis = AxisX
			c.SplitPosition = r.StartX + medianIndex(columnSums(errs, w, h), c.ErrorScore)
		} else {
			c.SplitAxis = AxisY
			c.SplitPosition = r.StartY + medianIndex(rowSums(errs, w, h), c.ErrorScore)
		}
	}
	return c
}

func columnSums(errs []float64, w, h int) []float64 {
	sums := make([]float64, w)
	for j := 0; j < h; j++ {
		floats.Add(sums, errs[j*w:(j+1)*w])
	}
	return sums
}

func rowSums(errs []float64, w, h int) []float64 {
	sums := make([]float64, h)
	for j := range sums {
		sums[j] = floats.Sum(errs[j*w : (j+1)*w])
	}
	return sums
}

// medianIndex returns the first index whose cumulative sum reaches half of
// total, or the last index if rounding keeps it short.
func medianIndex(sums []float64, total float64) int {
	floats.CumSum(sums, sums)
	half := total / 2
	for i, v := range sums {
		if v >= half {
			return i
		}
	}
	return len(sums) - 1
}
