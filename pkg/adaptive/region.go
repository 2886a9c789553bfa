package adaptive

import (
	"fmt"
	"image"
)

// Axis identifies the dimension a region is bisected along
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

func (a Axis) String() string {
	if a == AxisY {
		return "y"
	}
	return "x"
}

// Region is a half-open rectangular pixel range [StartX, EndX) x [StartY, EndY).
// Regions are plain values; splitting replaces a region with two new ones.
type Region struct {
	StartX, StartY int
	EndX, EndY     int
}

// NewRegion creates a region from its bounds
func NewRegion(startX, startY, endX, endY int) Region {
	return Region{StartX: startX, StartY: startY, EndX: endX, EndY: endY}
}

// Dx returns the region width
func (r Region) Dx() int { return r.EndX - r.StartX }

// Dy returns the region height
func (r Region) Dy() int { return r.EndY - r.StartY }

// Area returns the number of pixels in the region
func (r Region) Area() int { return r.Dx() * r.Dy() }

// Bounds returns the region as an image.Rectangle
func (r Region) Bounds() image.Rectangle {
	return image.Rect(r.StartX, r.StartY, r.EndX, r.EndY)
}

// Split cuts the region at pos along axis. The first child holds the
// coordinates below pos, the second those from pos on.
func (r Region) Split(axis Axis, pos int) (Region, Region) {
	if axis == AxisY {
		return Region{r.StartX, r.StartY, r.EndX, pos},
			Region{r.StartX, pos, r.EndX, r.EndY}
	}
	return Region{r.StartX, r.StartY, pos, r.EndY},
		Region{pos, r.StartY, r.EndX, r.EndY}
}

func (r Region) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)", r.StartX, r.EndX, r.StartY, r.EndY)
}
