package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/df07/go-adaptive-sampler/pkg/adaptive"
	"github.com/df07/go-adaptive-sampler/pkg/output"
	"github.com/df07/go-adaptive-sampler/pkg/renderer"
	"github.com/df07/go-adaptive-sampler/pkg/source"
)

// options holds the parsed command line
type options struct {
	source        string
	image         string
	width, height int
	samples       int
	cores         int
	minVariance   float64
	minRegionSize int
	minRounds     int
	debug         string
	workers       int
	seed          int64
	output        string
	scale         float64
	regions       bool
	verbose       bool
}

func main() {
	defaults := renderer.DefaultConfig()
	opts := options{}

	flag.StringVar(&opts.source, "source", "penumbra", "Sample source: "+strings.Join(source.Names(), ", "))
	flag.StringVar(&opts.image, "image", "", "Resample an image file (png, jpeg, tiff, bmp, webp) instead of a procedural source")
	flag.IntVar(&opts.width, "width", defaults.Sampler.Width, "Image width in pixels")
	flag.IntVar(&opts.height, "height", defaults.Sampler.Height, "Image height in pixels")
	flag.IntVar(&opts.samples, "samples", defaults.Sampler.SamplesPerPixel, "Sample budget per pixel")
	flag.IntVar(&opts.cores, "cores", defaults.Sampler.CoreCount, "Initial grid is cores x cores regions")
	flag.Float64Var(&opts.minVariance, "min-variance", defaults.Sampler.MinVariance, "Error score below which a region is converged")
	flag.IntVar(&opts.minRegionSize, "min-region-size", defaults.Sampler.MinRegionSize, "Regions are not split into children this small")
	flag.IntVar(&opts.minRounds, "min-rounds", defaults.MinRoundsBeforeTest, "Samples to take before the first convergence test")
	flag.StringVar(&opts.debug, "debug", "off", "Debug output: 'off' or 'samples' (sample count heat map)")
	flag.IntVar(&opts.workers, "workers", defaults.NumWorkers, "Parallel workers (0 = CPU count)")
	flag.Int64Var(&opts.seed, "seed", defaults.Seed, "Random seed")
	flag.StringVar(&opts.output, "output", "", "Output file (.png, .tiff or .bmp); default output/<source>/render_<timestamp>.png")
	flag.Float64Var(&opts.scale, "scale", 1, "Scale factor applied to the saved image")
	flag.BoolVar(&opts.regions, "regions", false, "Also save a preview with region outlines after every convergence test")
	flag.BoolVar(&opts.verbose, "verbose", false, "Log every round")
	help := flag.Bool("help", false, "Show help information")
	flag.Parse()

	if *help {
		fmt.Println("Adaptive Sampler")
		fmt.Println("Usage: adaptive-sampler [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Available sources:")
		fmt.Println("  checker  - Anti-aliased checkerboard, noisy only along cell edges")
		fmt.Println("  gradient - Sky gradient with sub-pixel jitter")
		fmt.Println("  penumbra - Disc light and occluder, noisy in the soft shadow")
		fmt.Println("  -image   - Any picture, noisy where output pixels straddle texel edges")
		return
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	adaptive.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Ctrl-C stops sampling; the partial image is still finalized and saved
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildConfig converts command line options into a renderer configuration
func buildConfig(opts options) (renderer.Config, error) {
	debug, err := adaptive.ParseDebugChannel(opts.debug)
	if err != nil {
		return renderer.Config{}, err
	}

	config := renderer.Config{
		Sampler: adaptive.Config{
			CoreCount:       opts.cores,
			Width:           opts.width,
			Height:          opts.height,
			SamplesPerPixel: opts.samples,
			MinVariance:     opts.minVariance,
			MinRegionSize:   opts.minRegionSize,
			Debug:           debug,
		},
		NumWorkers:          opts.workers,
		MinRoundsBeforeTest: opts.minRounds,
		Seed:                opts.seed,
	}
	if err := config.Sampler.Validate(); err != nil {
		return renderer.Config{}, err
	}
	if opts.scale <= 0 {
		return renderer.Config{}, fmt.Errorf("scale must be positive, got %g", opts.scale)
	}
	return config, nil
}

// outputPath returns the file to write, defaulting to a timestamped PNG
// under output/<source>/
func outputPath(opts options, now time.Time) string {
	if opts.output != "" {
		return opts.output
	}
	name := opts.source
	if opts.image != "" {
		name = "image"
	}
	timestamp := now.Format("20060102_150405")
	return filepath.Join("output", name, fmt.Sprintf("render_%s.png", timestamp))
}

// createSource returns the image source when -image is set, otherwise the
// named procedural source
func createSource(opts options) (renderer.SampleSource, error) {
	if opts.image == "" {
		return source.New(opts.source, opts.width, opts.height)
	}
	data, err := source.LoadImage(opts.image)
	if err != nil {
		return nil, err
	}
	return source.NewImage(data, opts.width, opts.height), nil
}

// regionsPath returns the path of the region preview for a given round
func regionsPath(path string, round int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_regions_%03d%s", strings.TrimSuffix(path, ext), round, ext)
}

func run(ctx context.Context, opts options) error {
	config, err := buildConfig(opts)
	if err != nil {
		return err
	}
	src, err := createSource(opts)
	if err != nil {
		return err
	}

	ar, err := renderer.NewAdaptiveRenderer(src, config)
	if err != nil {
		return err
	}

	path := outputPath(opts, time.Now())
	name := opts.source
	if opts.image != "" {
		name = filepath.Base(opts.image)
	}
	fmt.Printf("Rendering %s at %dx%d, up to %d samples per pixel...\n", name, opts.width, opts.height, opts.samples)

	startTime := time.Now()
	roundChan, errChan := ar.RenderProgressive(ctx)

	var final *image.RGBA
	var stats renderer.RenderStats
	for result := range roundChan {
		stats = result.Stats
		if result.IsLast {
			final = result.Image
			continue
		}
		if opts.regions && result.Round.Tested {
			preview := renderer.RegionOverlay(result.Image, result.Regions, color.RGBA{R: 255, B: 255, A: 255})
			if err := output.Save(regionsPath(path, result.Round.Round), output.Scale(preview, opts.scale)); err != nil {
				return err
			}
		}
	}

	interrupted := false
	if err := <-errChan; err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		interrupted = true
	}
	if final == nil {
		// Final result is dropped only if the render was interrupted while
		// the channel was full
		final = ar.Image()
		stats = ar.Stats()
	}

	fmt.Printf("Render completed in %v\n", time.Since(startTime))
	if interrupted {
		fmt.Printf("Interrupted after %d rounds; remaining regions normalized by samples taken\n", stats.Rounds)
	}
	fmt.Printf("Samples per pixel: %.1f (range %d - %d), %d regions converged early\n",
		stats.AverageSamples, stats.MinSamples, stats.MaxSamplesUsed, stats.ConvergedRegions)
	fmt.Printf("Average luminance: %.4f\n", renderer.CalculateAverageLuminance(final))

	if err := output.Save(path, output.Scale(final, opts.scale)); err != nil {
		return err
	}
	fmt.Printf("Render saved as %s\n", path)
	return nil
}
