package renderer

import (
	"math/rand"

	"github.com/df07/go-adaptive-sampler/pkg/core"
)

// SampleSource computes one Monte Carlo color sample for pixel (x, y).
// Implementations are called concurrently from several workers, each with
// its own random generator, and must not share mutable state.
type SampleSource interface {
	Sample(x, y int, random *rand.Rand) core.Vec3
}

// SampleFunc adapts a plain function to SampleSource
type SampleFunc func(x, y int, random *rand.Rand) core.Vec3

// Sample calls f
func (f SampleFunc) Sample(x, y int, random *rand.Rand) core.Vec3 {
	return f(x, y, random)
}
