package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/url"
	"strconv"

	"github.com/df07/go-adaptive-sampler/pkg/adaptive"
	"github.com/df07/go-adaptive-sampler/pkg/renderer"
	"github.com/df07/go-adaptive-sampler/pkg/source"
)

// Parameter limits shared by request parsing and the config endpoint
const (
	minImageSize     = 16
	maxImageSize     = 2000
	maxSamples       = 10000
	maxCores         = 64
	minVarianceFloor = 1e-9
	maxRegionSize    = 256
	maxRoundsToTest  = 1000
)

// Server handles web requests for the adaptive sampler
type Server struct {
	port    int
	console *ConsoleHandler
}

// NewServer creates a new web server. Renders stream the records of console
// to the browser; console may be nil.
func NewServer(port int, console *ConsoleHandler) *Server {
	return &Server{port: port, console: console}
}

// RenderRequest represents a render request from the client
type RenderRequest struct {
	Source        string  `json:"source"`        // Sample source name (e.g., "penumbra")
	Width         int     `json:"width"`         // Image width
	Height        int     `json:"height"`        // Image height
	Samples       int     `json:"samples"`       // Sample budget per pixel
	Cores         int     `json:"cores"`         // Initial grid is cores x cores
	MinVariance   float64 `json:"minVariance"`   // Convergence threshold
	MinRegionSize int     `json:"minRegionSize"` // Smallest child region dimension
	MinRounds     int     `json:"minRounds"`     // Rounds before the first convergence test
	Debug         string  `json:"debug"`         // "off" or "samples"
	Regions       bool    `json:"regions"`       // Draw region outlines on previews
}

// Stats represents render statistics
type Stats struct {
	TotalPixels      int     `json:"totalPixels"`
	TotalSamples     int64   `json:"totalSamples"`
	AverageSamples   float64 `json:"averageSamples"`
	MaxSamples       int     `json:"maxSamples"`
	MinSamples       int     `json:"minSamples"`
	MaxSamplesUsed   int     `json:"maxSamplesUsed"`
	ActiveRegions    int     `json:"activeRegions"`
	ConvergedRegions int     `json:"convergedRegions"`
	FinalizedPixels  int     `json:"finalizedPixels"`
}

// Handler returns the HTTP handler with all API endpoints registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/render", s.handleRender)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/config", s.handleConfig)
	return mux
}

// Start starts the web server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	adaptive.Logger().Info("starting web server", "addr", "http://localhost"+addr)
	return http.ListenAndServe(addr, s.Handler())
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// parseRenderRequest parses request parameters
func (s *Server) parseRenderRequest(r *http.Request) (*RenderRequest, error) {
	defaults := renderer.DefaultConfig()
	query := r.URL.Query()
	req := &RenderRequest{Source: "penumbra", Debug: "off"}

	if name := query.Get("source"); name != "" {
		req.Source = name
	}
	if debug := query.Get("debug"); debug != "" {
		if _, err := adaptive.ParseDebugChannel(debug); err != nil {
			return nil, err
		}
		req.Debug = debug
	}

	var err error
	if req.Width, err = parseIntParam(query, "width", defaults.Sampler.Width, minImageSize, maxImageSize); err != nil {
		return nil, err
	}
	if req.Height, err = parseIntParam(query, "height", defaults.Sampler.Height, minImageSize, maxImageSize); err != nil {
		return nil, err
	}
	if req.Samples, err = parseIntParam(query, "samples", defaults.Sampler.SamplesPerPixel, 1, maxSamples); err != nil {
		return nil, err
	}
	if req.Cores, err = parseIntParam(query, "cores", defaults.Sampler.CoreCount, 1, maxCores); err != nil {
		return nil, err
	}
	if req.MinVariance, err = parseFloatParam(query, "minVariance", defaults.Sampler.MinVariance, minVarianceFloor, 1); err != nil {
		return nil, err
	}
	if req.MinRegionSize, err = parseIntParam(query, "minRegionSize", defaults.Sampler.MinRegionSize, 1, maxRegionSize); err != nil {
		return nil, err
	}
	if req.MinRounds, err = parseIntParam(query, "minRounds", defaults.MinRoundsBeforeTest, 0, maxRoundsToTest); err != nil {
		return nil, err
	}
	if req.Regions, err = parseBoolParam(query, "regions", false); err != nil {
		return nil, err
	}

	// Performance warning
	if req.Width*req.Height > 800*600 && req.Samples > 256 {
		adaptive.Logger().Warn("large image with high sample budget may render slowly",
			"width", req.Width, "height", req.Height, "samples", req.Samples)
	}

	return req, nil
}

// config converts a request into a renderer configuration
func (req *RenderRequest) config() renderer.Config {
	debug, _ := adaptive.ParseDebugChannel(req.Debug)
	config := renderer.DefaultConfig()
	config.Sampler = adaptive.Config{
		CoreCount:       req.Cores,
		Width:           req.Width,
		Height:          req.Height,
		SamplesPerPixel: req.Samples,
		MinVariance:     req.MinVariance,
		MinRegionSize:   req.MinRegionSize,
		Debug:           debug,
	}
	config.MinRoundsBeforeTest = req.MinRounds
	return config
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseFloatParam parses a float parameter from URL query with validation
func parseFloatParam(values url.Values, key string, defaultValue, min, max float64) (float64, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %g and %g, got: %g", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseBoolParam parses a boolean parameter from URL query
func parseBoolParam(values url.Values, key string, defaultValue bool) (bool, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %s", key, value)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// imageToBase64PNG converts an image to base64-encoded PNG
func (s *Server) imageToBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// handleConfig returns the available sources with default settings and limits
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	defaults := renderer.DefaultConfig()
	response := map[string]interface{}{
		"sources": source.Names(),
		"defaults": map[string]interface{}{
			"width":         defaults.Sampler.Width,
			"height":        defaults.Sampler.Height,
			"samples":       defaults.Sampler.SamplesPerPixel,
			"cores":         defaults.Sampler.CoreCount,
			"minVariance":   defaults.Sampler.MinVariance,
			"minRegionSize": defaults.Sampler.MinRegionSize,
			"minRounds":     defaults.MinRoundsBeforeTest,
			"debug":         defaults.Sampler.Debug.String(),
		},
		"limits": map[string]interface{}{
			"width":         map[string]int{"min": minImageSize, "max": maxImageSize},
			"height":        map[string]int{"min": minImageSize, "max": maxImageSize},
			"samples":       map[string]int{"min": 1, "max": maxSamples},
			"cores":         map[string]int{"min": 1, "max": maxCores},
			"minVariance":   map[string]float64{"min": minVarianceFloor, "max": 1},
			"minRegionSize": map[string]int{"min": 1, "max": maxRegionSize},
			"minRounds":     map[string]int{"min": 0, "max": maxRoundsToTest},
		},
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
