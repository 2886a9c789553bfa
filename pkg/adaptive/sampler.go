package adaptive

import (
	"fmt"
	"log/slog"

	"github.com/df07/go-adaptive-sampler/pkg/core"
)

// RoundSummary counts what ApplyRoundDecisions did with each region
type RoundSummary struct {
	Converged int // Regions finalized and removed
	Split     int // Regions replaced by two children
	Retained  int // Regions carried forward unchanged
}

// Sampler owns the working set of regions and borrows the caller's
// accumulator buffers for the lifetime of one render.
//
// Contributions may be made concurrently as long as no two goroutines write
// the same region. Classification, ApplyRoundDecisions and finalization must
// run between rounds, after every contribution for the round has landed.
type Sampler struct {
	config     Config
	primary    *Buffer
	secondary  *Buffer
	regions    []Region
	round      int // Samples accumulated into active regions
	maxSamples int // High-water mark of round, used by debug output
	finalized  int // Pixels finalized so far
	converged  int // Regions finalized before the budget ran out
}

// New validates config and creates a sampler over the given buffers, which
// must both cover config.Width x config.Height.
func New(config Config, primary, secondary *Buffer) (*Sampler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampler config: %w", err)
	}
	if !primary.matches(config.Width, config.Height) || !secondary.matches(config.Width, config.Height) {
		return nil, fmt.Errorf("%w: want %dx%d", ErrBufferShape, config.Width, config.Height)
	}

	regions, err := Initialize(config.CoreCount, config.Width, config.Height)
	if err != nil {
		return nil, err
	}

	Logger().Info("adaptive sampler created",
		slog.Int("width", config.Width),
		slog.Int("height", config.Height),
		slog.Int("regions", len(regions)),
		slog.Int("samples", config.SamplesPerPixel))

	return &Sampler{
		config:    config,
		primary:   primary,
		secondary: secondary,
		regions:   regions,
	}, nil
}

// Config returns the sampler configuration
func (s *Sampler) Config() Config { return s.config }

// Regions returns a copy of the active regions
func (s *Sampler) Regions() []Region {
	out := make([]Region, len(s.regions))
	copy(out, s.regions)
	return out
}

// ActiveRegions returns the number of regions still being sampled
func (s *Sampler) ActiveRegions() int { return len(s.regions) }

// ConvergedRegions returns how many regions were finalized early
func (s *Sampler) ConvergedRegions() int { return s.converged }

// Round returns the number of samples accumulated into active regions
func (s *Sampler) Round() int { return s.round }

// MaxSamplesReached returns the highest round count seen
func (s *Sampler) MaxSamplesReached() int { return s.maxSamples }

// FinalizedPixels returns the number of pixels normalized so far
func (s *Sampler) FinalizedPixels() int { return s.finalized }

// Done reports whether sampling should stop: every region converged or the
// sample budget is spent.
func (s *Sampler) Done() bool {
	return len(s.regions) == 0 || s.round >= s.config.SamplesPerPixel
}

// ContributePrimary adds a sample color into the primary accumulator
func (s *Sampler) ContributePrimary(x, y int, color core.Vec3) {
	s.primary.Add(x, y, color)
}

// ContributeSecondary adds the companion quantity into the secondary accumulator
func (s *Sampler) ContributeSecondary(x, y int, color core.Vec3) {
	s.secondary.Add(x, y, color)
}

// CompleteRound records that one more sample has been contributed to every
// active pixel and returns the new sample count.
func (s *Sampler) CompleteRound() int {
	s.round++
	s.maxSamples = max(s.maxSamples, s.round)
	return s.round
}

// Classify tests region r against the current buffers and sample count
func (s *Sampler) Classify(r Region) Classification {
	return Classify(r, s.round, s.config.Width, s.config.Height, s.config.MinVariance, s.primary, s.secondary)
}

// ClassifyAll classifies every active region in order
func (s *Sampler) ClassifyAll() []Classification {
	results := make([]Classification, len(s.regions))
	for k, r := range s.regions {
		results[k] = s.Classify(r)
	}
	return results
}

// ApplyRoundDecisions finalizes converged regions, splits splittable ones and
// keeps the rest. results must be parallel to Regions().
func (s *Sampler) ApplyRoundDecisions(results []Classification) (RoundSummary, error) {
	next, converged, err := Partition(s.regions, results, s.config.MinRegionSize)
	if err != nil {
		return RoundSummary{}, err
	}

	for _, r := range converged {
		s.FinalizeConverged(r, s.round)
	}

	summary := RoundSummary{Converged: len(converged)}
	summary.Split = len(next) - (len(s.regions) - len(converged))
	summary.Retained = len(s.regions) - len(converged) - summary.Split
	s.converged += len(converged)
	s.regions = next

	Logger().Debug("round applied",
		slog.Int("round", s.round),
		slog.Int("converged", summary.Converged),
		slog.Int("split", summary.Split),
		slog.Int("active", len(next)))

	return summary, nil
}

// FinalizeConverged divides every pixel of r by samplesTaken, fixing its
// output value. In DebugSampleCount mode the pixels are instead set to
// samplesTaken / SamplesPerPixel.
func (s *Sampler) FinalizeConverged(r Region, samplesTaken int) {
	s.finalize(r, samplesTaken, samplesTaken)
}

// FinalizeRemaining normalizes every still-active region by the number of
// samples taken so far (the full budget unless rendering stopped early) and
// empties the active set. In DebugSampleCount mode the pixels are set to
// MaxSamplesReached / SamplesPerPixel.
func (s *Sampler) FinalizeRemaining() {
	if s.round < s.config.SamplesPerPixel && len(s.regions) > 0 {
		Logger().Warn("finalizing before sample budget was reached",
			slog.Int("round", s.round),
			slog.Int("budget", s.config.SamplesPerPixel),
			slog.Int("regions", len(s.regions)))
	}
	for _, r := range s.regions {
		s.finalize(r, s.round, s.maxSamples)
	}
	s.regions = nil

	Logger().Info("sampling finalized",
		slog.Int("round", s.round),
		slog.Int("converged_regions", s.converged),
		slog.Int("pixels", s.finalized))
}

func (s *Sampler) finalize(r Region, samplesTaken, debugSamples int) {
	if s.config.Debug == DebugSampleCount {
		v := float64(debugSamples) / float64(s.config.SamplesPerPixel)
		s.primary.Fill(r, core.NewVec3(v, v, v))
	} else {
		// Nothing was accumulated when no round ran; the sums are still zero
		s.primary.Scale(r, 1/float64(max(samplesTaken, 1)))
	}
	s.finalized += r.Area()
}
