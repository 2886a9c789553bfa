package adaptive

import "fmt"

// Initialize divides a width x height image into a coreCount x coreCount
// grid of near-equal regions. Any remainder from the integer division is
// folded into the last column and row so every pixel is covered once.
// Images smaller than the grid get one region per pixel along that side.
func Initialize(coreCount, width, height int) ([]Region, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, width, height)
	}
	if coreCount < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCoreCount, coreCount)
	}

	// A grid finer than the image would leave empty cells; cap it at one
	// pixel per column and row
	cols := min(coreCount, width)
	rows := min(coreCount, height)

	chunkX := width / cols
	chunkY := height / rows
	bonusX := width - chunkX*cols
	bonusY := height - chunkY*rows

	regions := make([]Region, 0, cols*rows)
	for i := 0; i < cols; i++ {
		for j := 0; j < rows; j++ {
			extraX, extraY := 0, 0
			if i == cols-1 {
				extraX = bonusX
			}
			if j == rows-1 {
				extraY = bonusY
			}
			regions = append(regions, NewRegion(i*chunkX, j*chunkY, (i+1)*chunkX+extraX, (j+1)*chunkY+extraY))
		}
	}
	return regions, nil
}

// Partition applies one round of classifications to regions. results[k]
// belongs to regions[k]. Converged regions are returned separately for
// finalization; splittable regions whose children would both exceed
// minRegionSize in each dimension are replaced by those children; every
// other region is carried forward unchanged. The union of next and
// converged always equals the union of regions.
func Partition(regions []Region, results []Classification, minRegionSize int) (next, converged []Region, err error) {
	if minRegionSize <= 0 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrInvalidMinRegionSize, minRegionSize)
	}
	if len(results) != len(regions) {
		return nil, nil, fmt.Errorf("%w: %d results for %d regions", ErrResultMismatch, len(results), len(regions))
	}

	next = make([]Region, 0, len(regions))
	for k, r := range regions {
		res := results[k]
		switch {
		case res.Converged:
			converged = append(converged, r)
		case res.ShouldSplit && canSplit(r, res.SplitAxis, res.SplitPosition, minRegionSize):
			a, b := r.Split(res.SplitAxis, res.SplitPosition)
			next = append(next, a, b)
		default:
			next = append(next, r)
		}
	}
	return next, converged, nil
}

// canSplit reports whether both children of cutting r at pos along axis
// exceed minSize in width and height.
func canSplit(r Region, axis Axis, pos, minSize int) bool {
	if axis == AxisY {
		return r.Dx() > minSize && pos-r.StartY > minSize && r.EndY-pos > minSize
	}
	return r.Dy() > minSize && pos-r.StartX > minSize && r.EndX-pos > minSize
}
