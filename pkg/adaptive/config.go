package adaptive

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDimensions    = errors.New("image dimensions must be positive")
	ErrInvalidCoreCount     = errors.New("core count must be at least 1")
	ErrInvalidSampleBudget  = errors.New("samples per pixel must be positive")
	ErrInvalidMinVariance   = errors.New("min variance must be positive")
	ErrInvalidMinRegionSize = errors.New("min region size must be positive")
	ErrBufferShape          = errors.New("buffer does not match image dimensions")
	ErrResultMismatch       = errors.New("classification count does not match region count")
)

// DebugChannel selects an optional diagnostic output written at finalization
// in place of the accumulated color.
type DebugChannel int

const (
	DebugOff         DebugChannel = iota // Final color (default)
	DebugSampleCount                     // samples taken / samples per pixel, in all three channels
)

// String returns the flag name of the debug channel
func (d DebugChannel) String() string {
	switch d {
	case DebugOff:
		return "off"
	case DebugSampleCount:
		return "samples"
	default:
		return fmt.Sprintf("DebugChannel(%d)", int(d))
	}
}

// ParseDebugChannel converts a flag value into a DebugChannel
func ParseDebugChannel(name string) (DebugChannel, error) {
	switch name {
	case "", "off":
		return DebugOff, nil
	case "samples":
		return DebugSampleCount, nil
	default:
		return DebugOff, fmt.Errorf("unknown debug channel %q (want off or samples)", name)
	}
}

// Config contains the adaptive sampler configuration
type Config struct {
	CoreCount       int          // Initial grid is CoreCount x CoreCount regions
	Width, Height   int          // Image dimensions in pixels
	SamplesPerPixel int          // Total sample budget (ns)
	MinVariance     float64      // Error score below which a region is converged
	MinRegionSize   int          // Children must exceed this in both dimensions to split
	Debug           DebugChannel // Diagnostic output selector
}

// DefaultConfig returns sensible default values
func DefaultConfig() Config {
	return Config{
		CoreCount:       4,
		Width:           400,
		Height:          225,
		SamplesPerPixel: 64,
		MinVariance:     0.00005,
		MinRegionSize:   4,
		Debug:           DebugOff,
	}
}

// Validate rejects configurations the sampler cannot start from
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, c.Width, c.Height)
	}
	if c.CoreCount < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidCoreCount, c.CoreCount)
	}
	if c.SamplesPerPixel <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleBudget, c.SamplesPerPixel)
	}
	if c.MinVariance <= 0 {
		return fmt.Errorf("%w: got %g", ErrInvalidMinVariance, c.MinVariance)
	}
	if c.MinRegionSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMinRegionSize, c.MinRegionSize)
	}
	return nil
}
