package adaptive

import "github.com/df07/go-adaptive-sampler/pkg/core"

// Buffer is a full-image array of RGB sums indexed by absolute pixel
// coordinate. Buffers are allocated and owned by the rendering driver;
// the sampler only reads and rescales them.
type Buffer struct {
	Width, Height int
	Pix           []core.Vec3 // Row-major, Pix[y*Width+x]
}

// NewBuffer allocates a zeroed buffer
func NewBuffer(width, height int) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]core.Vec3, width*height),
	}
}

// At returns the accumulated value at (x, y)
func (b *Buffer) At(x, y int) core.Vec3 {
	return b.Pix[y*b.Width+x]
}

// Set overwrites the value at (x, y)
func (b *Buffer) Set(x, y int, c core.Vec3) {
	b.Pix[y*b.Width+x] = c
}

// Add accumulates c into (x, y)
func (b *Buffer) Add(x, y int, c core.Vec3) {
	i := y*b.Width + x
	b.Pix[i] = b.Pix[i].Add(c)
}

// Scale multiplies every pixel inside r by factor
func (b *Buffer) Scale(r Region, factor float64) {
	for y := r.StartY; y < r.EndY; y++ {
		row := b.Pix[y*b.Width : (y+1)*b.Width]
		for x := r.StartX; x < r.EndX; x++ {
			row[x] = row[x].Multiply(factor)
		}
	}
}

// Fill overwrites every pixel inside r with c
func (b *Buffer) Fill(r Region, c core.Vec3) {
	for y := r.StartY; y < r.EndY; y++ {
		row := b.Pix[y*b.Width : (y+1)*b.Width]
		for x := r.StartX; x < r.EndX; x++ {
			row[x] = c
		}
	}
}

func (b *Buffer) matches(width, height int) bool {
	return b != nil && b.Width == width && b.Height == height && len(b.Pix) == width*height
}
