package renderer

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/df07/go-adaptive-sampler/pkg/adaptive"
	"github.com/df07/go-adaptive-sampler/pkg/core"
)

// Config contains configuration for adaptive progressive rendering
type Config struct {
	Sampler             adaptive.Config // Partition, budget and convergence settings
	NumWorkers          int             // Number of parallel workers (0 = use CPU count)
	MinRoundsBeforeTest int             // Rounds to take before the first convergence test
	Seed                int64           // Base seed for deterministic sampling
}

// DefaultConfig returns sensible default values
func DefaultConfig() Config {
	return Config{
		Sampler:             adaptive.DefaultConfig(),
		NumWorkers:          0, // Auto-detect CPU count
		MinRoundsBeforeTest: 4,
		Seed:                0,
	}
}

// RoundResult contains the state of the render after a round
type RoundResult struct {
	Image   *image.RGBA       // Preview of the current estimate
	Regions []adaptive.Region // Regions still being sampled
	Round   RoundStats
	Stats   RenderStats
	IsLast  bool // Set on the result emitted after final normalization
}

// AdaptiveRenderer drives an adaptive sampler round by round: it samples every
// active region in parallel, waits for all workers, classifies the regions in
// parallel, waits again, and only then updates the partition.
type AdaptiveRenderer struct {
	config     Config
	source     SampleSource
	primary    *adaptive.Buffer // Owned by the renderer for the image lifetime
	secondary  *adaptive.Buffer
	sampler    *adaptive.Sampler
	workerPool *WorkerPool
	stats      RenderStats
	started    bool
	finished   bool
	failed     bool // A sample batch failed; primary holds mixed round counts
}

// NewAdaptiveRenderer allocates the accumulator buffers and creates the sampler
func NewAdaptiveRenderer(source SampleSource, config Config) (*AdaptiveRenderer, error) {
	if source == nil {
		return nil, fmt.Errorf("sample source is required")
	}
	if config.MinRoundsBeforeTest < 0 {
		return nil, fmt.Errorf("min rounds before test must not be negative, got %d", config.MinRoundsBeforeTest)
	}

	sc := config.Sampler
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampler config: %w", err)
	}
	primary := adaptive.NewBuffer(sc.Width, sc.Height)
	secondary := adaptive.NewBuffer(sc.Width, sc.Height)

	sampler, err := adaptive.New(sc, primary, secondary)
	if err != nil {
		return nil, err
	}

	return &AdaptiveRenderer{
		config:     config,
		source:     source,
		primary:    primary,
		secondary:  secondary,
		sampler:    sampler,
		workerPool: NewWorkerPool(source, config.NumWorkers),
		stats: RenderStats{
			TotalPixels:   sc.Width * sc.Height,
			MaxSamples:    sc.SamplesPerPixel,
			ActiveRegions: sampler.ActiveRegions(),
		},
	}, nil
}

// Sampler returns the underlying adaptive sampler
func (ar *AdaptiveRenderer) Sampler() *adaptive.Sampler { return ar.sampler }

// Stats returns the statistics gathered so far
func (ar *AdaptiveRenderer) Stats() RenderStats { return ar.stats }

// Done reports whether no further rounds will be taken
func (ar *AdaptiveRenderer) Done() bool { return ar.finished || ar.sampler.Done() }

// shouldTest reports whether regions are classified after the given round.
// Only even rounds qualify: secondary then holds exactly half the samples.
func (ar *AdaptiveRenderer) shouldTest(round int) bool {
	return round%2 == 0 && round >= ar.config.MinRoundsBeforeTest
}

// RenderRound takes one sample for every active pixel and, on test rounds,
// classifies the regions and applies the decisions.
func (ar *AdaptiveRenderer) RenderRound() (RoundStats, error) {
	if ar.Done() {
		return RoundStats{}, fmt.Errorf("render already complete")
	}
	if !ar.started {
		ar.workerPool.Start()
		ar.started = true
	}

	startTime := time.Now()
	round := ar.sampler.Round() + 1
	regions := ar.sampler.Regions()
	rs := RoundStats{Round: round, Regions: len(regions)}

	results, err := ar.workerPool.RunBatch(ar.tasks(SampleTask, round, regions))
	if err != nil {
		ar.failed = true
		return rs, fmt.Errorf("sampling round %d: %w", round, err)
	}
	for _, result := range results {
		rs.Samples += result.Samples
	}
	ar.sampler.CompleteRound()

	if ar.shouldTest(round) {
		results, err = ar.workerPool.RunBatch(ar.tasks(ClassifyTask, round, regions))
		if err != nil {
			return rs, fmt.Errorf("classifying round %d: %w", round, err)
		}
		classifications := make([]adaptive.Classification, len(results))
		for i, result := range results {
			classifications[i] = result.Classification
		}

		summary, err := ar.sampler.ApplyRoundDecisions(classifications)
		if err != nil {
			return rs, fmt.Errorf("applying round %d: %w", round, err)
		}
		rs.Tested = true
		rs.Converged = summary.Converged
		rs.Split = summary.Split
		rs.Retained = summary.Retained
	}

	rs.Duration = time.Since(startTime)
	ar.stats.record(rs)
	ar.stats.ActiveRegions = ar.sampler.ActiveRegions()
	ar.stats.FinalizedPixels = ar.sampler.FinalizedPixels()

	adaptive.Logger().Debug("round complete",
		slog.Int("round", round),
		slog.Int("regions", rs.Regions),
		slog.Int("active", ar.stats.ActiveRegions),
		slog.Duration("elapsed", rs.Duration))

	return rs, nil
}

// tasks builds one task per region; TaskID is the region's index
func (ar *AdaptiveRenderer) tasks(kind TaskKind, round int, regions []adaptive.Region) []RegionTask {
	tasks := make([]RegionTask, len(regions))
	for i, r := range regions {
		tasks[i] = RegionTask{
			Kind:    kind,
			Region:  r,
			Round:   round,
			TaskID:  i,
			Seed:    ar.config.Seed,
			Sampler: ar.sampler,
		}
	}
	return tasks
}

// Finish normalizes every region that is still active by the samples taken
// so far and stops the worker pool. It is safe to call more than once.
// After a failed sample batch some pixels of the last round were written and
// others were not, so normalization is skipped and the buffers stay raw sums.
func (ar *AdaptiveRenderer) Finish() RenderStats {
	if ar.finished {
		return ar.stats
	}
	if !ar.failed {
		ar.sampler.FinalizeRemaining()
	}
	if ar.started {
		ar.workerPool.Stop()
	}
	ar.finished = true

	ar.stats.ActiveRegions = ar.sampler.ActiveRegions()
	ar.stats.FinalizedPixels = ar.sampler.FinalizedPixels()
	if ar.stats.MinSamples == 0 {
		ar.stats.MinSamples = ar.sampler.Round()
	}
	ar.stats.MaxSamplesUsed = ar.sampler.MaxSamplesReached()
	return ar.stats
}

// Image returns the current image. Before Finish it is a preview in which
// active regions show their running mean.
func (ar *AdaptiveRenderer) Image() *image.RGBA {
	debug := ar.config.Sampler.Debug == adaptive.DebugSampleCount
	if ar.finished {
		if debug {
			return HeatMap(ar.primary)
		}
		return ToImage(ar.primary)
	}

	preview := adaptive.NewBuffer(ar.primary.Width, ar.primary.Height)
	copy(preview.Pix, ar.primary.Pix)
	round := ar.sampler.Round()
	for _, r := range ar.sampler.Regions() {
		if debug {
			v := float64(round) / float64(ar.config.Sampler.SamplesPerPixel)
			preview.Fill(r, core.NewVec3(v, v, v))
		} else if round > 0 {
			preview.Scale(r, 1/float64(round))
		}
	}
	if debug {
		return HeatMap(preview)
	}
	return ToImage(preview)
}

// Render runs rounds until the sampler is done or ctx is cancelled, then
// finalizes. On cancellation the partially sampled image is still
// normalized and returned together with ctx.Err().
func (ar *AdaptiveRenderer) Render(ctx context.Context) (*image.RGBA, RenderStats, error) {
	for !ar.Done() {
		if err := ctx.Err(); err != nil {
			adaptive.Logger().Warn("rendering cancelled", slog.Int("round", ar.sampler.Round()))
			stats := ar.Finish()
			return ar.Image(), stats, err
		}
		if _, err := ar.RenderRound(); err != nil {
			ar.Finish()
			return nil, ar.stats, err
		}
	}
	stats := ar.Finish()
	return ar.Image(), stats, nil
}

// RenderProgressive renders with channel-based communication.
// A RoundResult is sent after every round and a final one with IsLast set
// after normalization. On cancellation the image is still finalized, the
// final result is delivered if there is room, and ctx.Err() is sent on the
// error channel.
func (ar *AdaptiveRenderer) RenderProgressive(ctx context.Context) (<-chan RoundResult, <-chan error) {
	roundChan := make(chan RoundResult, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(roundChan)
		defer close(errChan)

		adaptive.Logger().Info("starting adaptive rendering",
			slog.Int("budget", ar.config.Sampler.SamplesPerPixel),
			slog.Int("workers", ar.workerPool.GetNumWorkers()))

		for !ar.Done() {
			select {
			case <-ctx.Done():
				adaptive.Logger().Warn("rendering cancelled", slog.Int("round", ar.sampler.Round()))
				ar.Finish()
				select {
				case roundChan <- ar.result(RoundStats{Round: ar.sampler.Round()}, true):
				default:
				}
				errChan <- ctx.Err()
				return
			default:
			}

			rs, err := ar.RenderRound()
			if err != nil {
				ar.Finish()
				errChan <- err
				return
			}

			select {
			case roundChan <- ar.result(rs, false):
			case <-ctx.Done():
				// Picked up at the top of the loop
			}
		}

		ar.Finish()
		select {
		case roundChan <- ar.result(RoundStats{Round: ar.sampler.Round()}, true):
		case <-ctx.Done():
		}
	}()

	return roundChan, errChan
}

func (ar *AdaptiveRenderer) result(rs RoundStats, last bool) RoundResult {
	return RoundResult{
		Image:   ar.Image(),
		Regions: ar.sampler.Regions(),
		Round:   rs,
		Stats:   ar.stats,
		IsLast:  last,
	}
}
