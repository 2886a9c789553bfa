package renderer

import (
	"context"
	"errors"
	"image/color"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/df07/go-adaptive-sampler/pkg/adaptive"
	"github.com/df07/go-adaptive-sampler/pkg/core"
)

// testConfig returns a small deterministic configuration
func testConfig(width, height, samples int) Config {
	config := DefaultConfig()
	config.Sampler = adaptive.Config{
		CoreCount:       2,
		Width:           width,
		Height:          height,
		SamplesPerPixel: samples,
		MinVariance:     1e-9,
		MinRegionSize:   1,
	}
	config.NumWorkers = 4
	config.MinRoundsBeforeTest = 2
	config.Seed = 1
	return config
}

func flatSource(c core.Vec3) SampleSource {
	return SampleFunc(func(x, y int, random *rand.Rand) core.Vec3 { return c })
}

// halfNoisySource is flat on the left half and uniform noise on the right half
func halfNoisySource(width int) SampleSource {
	return SampleFunc(func(x, y int, random *rand.Rand) core.Vec3 {
		if x < width/2 {
			return core.NewVec3(0.5, 0.5, 0.5)
		}
		return core.NewVec3(random.Float64(), random.Float64(), random.Float64())
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.NumWorkers != 0 {
		t.Errorf("Expected default workers 0 (auto), got %d", config.NumWorkers)
	}
	if config.MinRoundsBeforeTest != 4 {
		t.Errorf("Expected default min rounds before test 4, got %d", config.MinRoundsBeforeTest)
	}
	if err := config.Sampler.Validate(); err != nil {
		t.Errorf("Expected default sampler config to be valid, got %v", err)
	}
	if config.Sampler.Debug != adaptive.DebugOff {
		t.Errorf("Expected debug output off by default, got %v", config.Sampler.Debug)
	}
}

func TestNewAdaptiveRenderer_InvalidConfig(t *testing.T) {
	config := testConfig(16, 16, 8)
	config.Sampler.CoreCount = 0
	if _, err := NewAdaptiveRenderer(flatSource(core.Vec3{}), config); !errors.Is(err, adaptive.ErrInvalidCoreCount) {
		t.Errorf("Expected ErrInvalidCoreCount, got %v", err)
	}

	if _, err := NewAdaptiveRenderer(nil, testConfig(16, 16, 8)); err == nil {
		t.Error("Expected error for nil sample source")
	}
}

func TestAdaptiveRenderer_FlatImageConvergesEarly(t *testing.T) {
	ar, err := NewAdaptiveRenderer(flatSource(core.NewVec3(0.5, 0.5, 0.5)), testConfig(32, 32, 32))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	img, stats, err := ar.Render(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if stats.Rounds != 2 {
		t.Errorf("Expected convergence after 2 rounds, got %d", stats.Rounds)
	}
	if stats.FinalizedPixels != 32*32 {
		t.Errorf("Expected %d finalized pixels, got %d", 32*32, stats.FinalizedPixels)
	}
	if stats.AverageSamples != 2 {
		t.Errorf("Expected 2 samples per pixel, got %f", stats.AverageSamples)
	}
	if stats.ConvergedRegions != 4 {
		t.Errorf("Expected 4 converged regions, got %d", stats.ConvergedRegions)
	}

	expected := vec3ToColor(core.NewVec3(0.5, 0.5, 0.5))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if got := img.RGBAAt(x, y); got != expected {
				t.Fatalf("Pixel (%d,%d): expected %v, got %v", x, y, expected, got)
			}
		}
	}
}

func TestAdaptiveRenderer_NoisyHalfUsesFullBudget(t *testing.T) {
	ar, err := NewAdaptiveRenderer(halfNoisySource(16), testConfig(16, 16, 8))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, stats, err := ar.Render(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if stats.Rounds != 8 {
		t.Errorf("Expected the full budget of 8 rounds, got %d", stats.Rounds)
	}
	// Flat half stops after 2 samples, noisy half takes all 8
	expectedSamples := 128*2 + 128*8
	if stats.TotalSamples != expectedSamples {
		t.Errorf("Expected %d total samples, got %d", expectedSamples, stats.TotalSamples)
	}
	if stats.MinSamples != 2 || stats.MaxSamplesUsed != 8 {
		t.Errorf("Expected sample range 2-8, got %d-%d", stats.MinSamples, stats.MaxSamplesUsed)
	}
	if stats.FinalizedPixels != 256 {
		t.Errorf("Expected 256 finalized pixels, got %d", stats.FinalizedPixels)
	}
}

func TestAdaptiveRenderer_DeterministicAcrossWorkerCounts(t *testing.T) {
	render := func(workers int) []uint8 {
		config := testConfig(24, 16, 6)
		config.NumWorkers = workers
		ar, err := NewAdaptiveRenderer(halfNoisySource(24), config)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		img, _, err := ar.Render(context.Background())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return img.Pix
	}

	single := render(1)
	parallel := render(8)
	for i := range single {
		if single[i] != parallel[i] {
			t.Fatalf("Images differ at byte %d: %d vs %d", i, single[i], parallel[i])
		}
	}
}

func TestAdaptiveRenderer_CancelledBeforeStart(t *testing.T) {
	ar, err := NewAdaptiveRenderer(flatSource(core.NewVec3(1, 1, 1)), testConfig(8, 8, 16))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	img, stats, err := ar.Render(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if img == nil {
		t.Fatal("Expected a finalized image after cancellation")
	}
	if stats.Rounds != 0 || stats.FinalizedPixels != 64 {
		t.Errorf("Expected 0 rounds and 64 finalized pixels, got %d and %d", stats.Rounds, stats.FinalizedPixels)
	}
	if got := img.RGBAAt(3, 3); got != (color.RGBA{A: 255}) {
		t.Errorf("Expected black pixel without samples, got %v", got)
	}
}

func TestAdaptiveRenderer_CancelledMidRenderUsesPartialCount(t *testing.T) {
	const width, height = 8, 8
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	source := SampleFunc(func(x, y int, random *rand.Rand) core.Vec3 {
		// Cancel once the first round has been fully sampled
		if calls.Add(1) == width*height {
			cancel()
		}
		return core.NewVec3(0.25, 0.25, 0.25)
	})

	config := testConfig(width, height, 16)
	config.MinRoundsBeforeTest = 100 // Never classify, so nothing converges early
	ar, err := NewAdaptiveRenderer(source, config)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	img, stats, err := ar.Render(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if stats.Rounds != 1 {
		t.Errorf("Expected 1 round before cancellation, got %d", stats.Rounds)
	}
	if stats.FinalizedPixels != width*height {
		t.Errorf("Expected %d finalized pixels, got %d", width*height, stats.FinalizedPixels)
	}

	// Divided by the single sample taken, not the 16-sample budget
	expected := vec3ToColor(core.NewVec3(0.25, 0.25, 0.25))
	if got := img.RGBAAt(5, 2); got != expected {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestAdaptiveRenderer_SourcePanicBecomesError(t *testing.T) {
	source := SampleFunc(func(x, y int, random *rand.Rand) core.Vec3 {
		if x == 3 && y == 3 {
			panic("bad sample")
		}
		return core.Vec3{}
	})

	ar, err := NewAdaptiveRenderer(source, testConfig(8, 8, 4))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, _, err := ar.Render(context.Background()); err == nil {
		t.Error("Expected error from panicking sample source")
	}
}

func TestAdaptiveRenderer_FailedRoundSkipsNormalization(t *testing.T) {
	// Round 1 covers 64 samples; the 100th sample fails partway through round 2
	var calls atomic.Int64
	source := SampleFunc(func(x, y int, random *rand.Rand) core.Vec3 {
		if calls.Add(1) == 100 {
			panic("bad sample")
		}
		return core.NewVec3(1, 1, 1)
	})

	ar, err := NewAdaptiveRenderer(source, testConfig(8, 8, 4))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	img, stats, err := ar.Render(context.Background())
	if err == nil {
		t.Fatal("Expected error from failed sample batch")
	}
	if img != nil {
		t.Error("Expected no image after a failed round")
	}
	if got := ar.Sampler().FinalizedPixels(); got != 0 {
		t.Errorf("Expected no finalized pixels, got %d", got)
	}
	if stats.FinalizedPixels != 0 {
		t.Errorf("Expected stats to report 0 finalized pixels, got %d", stats.FinalizedPixels)
	}
	if stats.ActiveRegions != 4 {
		t.Errorf("Expected 4 regions left unnormalized, got %d", stats.ActiveRegions)
	}
	if !ar.Done() {
		t.Error("Expected renderer to be done after a failed round")
	}
}

func TestAdaptiveRenderer_RenderProgressive(t *testing.T) {
	ar, err := NewAdaptiveRenderer(halfNoisySource(16), testConfig(16, 16, 6))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	roundChan, errChan := ar.RenderProgressive(context.Background())

	var results []RoundResult
	for result := range roundChan {
		results = append(results, result)
	}
	if err, ok := <-errChan; ok && err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// One result per round plus the final one
	if len(results) != 7 {
		t.Fatalf("Expected 7 results, got %d", len(results))
	}
	for i, result := range results[:6] {
		if result.Round.Round != i+1 {
			t.Errorf("Result %d: expected round %d, got %d", i, i+1, result.Round.Round)
		}
		if result.IsLast {
			t.Errorf("Result %d: unexpected IsLast", i)
		}
		if result.Image == nil {
			t.Errorf("Result %d: missing preview image", i)
		}
	}

	last := results[len(results)-1]
	if !last.IsLast {
		t.Error("Expected final result to have IsLast set")
	}
	if len(last.Regions) != 0 {
		t.Errorf("Expected no active regions after finalization, got %d", len(last.Regions))
	}
	if last.Stats.FinalizedPixels != 256 {
		t.Errorf("Expected 256 finalized pixels, got %d", last.Stats.FinalizedPixels)
	}

	// Round 2 is the first test round: the flat half converges there
	if !results[1].Round.Tested || results[1].Round.Converged == 0 {
		t.Errorf("Expected regions to converge in round 2, got %+v", results[1].Round)
	}
	if results[0].Round.Tested {
		t.Error("Expected no convergence test after an odd round")
	}
}

func TestAdaptiveRenderer_DebugHeatMap(t *testing.T) {
	config := testConfig(16, 16, 8)
	config.Sampler.Debug = adaptive.DebugSampleCount
	ar, err := NewAdaptiveRenderer(halfNoisySource(16), config)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	img, _, err := ar.Render(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Flat half stopped at 2/8 of the budget, noisy half used all of it
	if got, want := img.RGBAAt(2, 2), heatColor(0.25); got != want {
		t.Errorf("Expected flat half heat %v, got %v", want, got)
	}
	if got, want := img.RGBAAt(12, 12), heatColor(1); got != want {
		t.Errorf("Expected noisy half heat %v, got %v", want, got)
	}
}

func TestAdaptiveRenderer_RenderRoundAfterFinish(t *testing.T) {
	ar, err := NewAdaptiveRenderer(flatSource(core.Vec3{}), testConfig(8, 8, 4))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ar.Finish()
	ar.Finish() // second call is a no-op

	if _, err := ar.RenderRound(); err == nil {
		t.Error("Expected error rendering a round after Finish")
	}
}
