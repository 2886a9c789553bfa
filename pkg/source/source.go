// Package source provides procedural sample sources for driving the adaptive
// renderer without a full scene. Each source has regions that are noise free,
// where the sampler should stop early, and regions with genuine Monte Carlo
// noise, where it should keep sampling.
package source

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/df07/go-adaptive-sampler/pkg/core"
	"github.com/df07/go-adaptive-sampler/pkg/renderer"
)

// Gradient is a vertical sky gradient with sub-pixel jitter
type Gradient struct {
	Width, Height int
	Top, Bottom   core.Vec3
}

// NewGradient creates the default blue-to-white sky
func NewGradient(width, height int) *Gradient {
	return &Gradient{
		Width:  width,
		Height: height,
		Top:    core.NewVec3(0.5, 0.7, 1.0),
		Bottom: core.NewVec3(1.0, 1.0, 1.0),
	}
}

func (g *Gradient) Sample(x, y int, random *rand.Rand) core.Vec3 {
	// Map from image rows to 0 (bottom) .. 1 (top)
	t := 1 - (float64(y)+random.Float64())/float64(g.Height)

	// Linear interpolation: (1-t)*bottom + t*top
	return g.Bottom.Multiply(1 - t).Add(g.Top.Multiply(t))
}

// Checker is a checkerboard sampled with jittered anti-aliasing. Only pixels
// straddling a cell edge are noisy.
type Checker struct {
	Width, Height int
	Cells         int // Cells along the shorter side
	A, B          core.Vec3
}

// NewChecker creates an 8-cell black and white checkerboard
func NewChecker(width, height int) *Checker {
	return &Checker{
		Width:  width,
		Height: height,
		Cells:  8,
		A:      core.NewVec3(0.9, 0.9, 0.9),
		B:      core.NewVec3(0.05, 0.05, 0.05),
	}
}

func (c *Checker) Sample(x, y int, random *rand.Rand) core.Vec3 {
	cell := float64(min(c.Width, c.Height)) / float64(c.Cells)
	u := math.Floor((float64(x) + random.Float64()) / cell)
	v := math.Floor((float64(y) + random.Float64()) / cell)
	if int(u+v)%2 == 0 {
		return c.A
	}
	return c.B
}

// Penumbra is a ground plane lit by a disc light with a disc occluder halfway
// between them. Each sample picks a point on the light, so the soft shadow
// edge is noisy while the umbra and the fully lit floor are not.
type Penumbra struct {
	Width, Height  int
	LightRadius    float64 // In units of the shorter image side
	OccluderRadius float64
	Light          core.Vec3
	Ambient        core.Vec3
}

// NewPenumbra creates the default soft shadow setup
func NewPenumbra(width, height int) *Penumbra {
	return &Penumbra{
		Width:          width,
		Height:         height,
		LightRadius:    0.2,
		OccluderRadius: 0.15,
		Light:          core.NewVec3(0.95, 0.85, 0.7),
		Ambient:        core.NewVec3(0.05, 0.05, 0.08),
	}
}

func (p *Penumbra) Sample(x, y int, random *rand.Rand) core.Vec3 {
	side := float64(min(p.Width, p.Height))
	// Floor point, centered on the image
	fx := (float64(x) + random.Float64() - float64(p.Width)/2) / side
	fy := (float64(y) + random.Float64() - float64(p.Height)/2) / side

	// Uniform point on the light disc, directly above the image center
	disk := core.SamplePointInUnitDisk(core.NewVec2(random.Float64(), random.Float64()))
	lx, ly := p.LightRadius*disk.X, p.LightRadius*disk.Y

	// The occluder sits at half the light height, so the shadow ray crosses
	// its plane at the midpoint
	mx, my := (fx+lx)/2, (fy+ly)/2
	if core.NewVec2(mx, my).Length() < p.OccluderRadius {
		return p.Ambient
	}
	return p.Ambient.Add(p.Light)
}

var constructors = map[string]func(width, height int) renderer.SampleSource{
	"gradient": func(w, h int) renderer.SampleSource { return NewGradient(w, h) },
	"checker":  func(w, h int) renderer.SampleSource { return NewChecker(w, h) },
	"penumbra": func(w, h int) renderer.SampleSource { return NewPenumbra(w, h) },
}

// Names returns the names accepted by New, sorted
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the named source for a width x height image
func New(name string, width, height int) (renderer.SampleSource, error) {
	create, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown source %q (available: %v)", name, Names())
	}
	return create(width, height), nil
}
