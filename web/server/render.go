package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"sync"
	"time"

	"github.com/df07/go-adaptive-sampler/pkg/adaptive"
	"github.com/df07/go-adaptive-sampler/pkg/renderer"
	"github.com/df07/go-adaptive-sampler/pkg/source"
)

// RegionInfo is a half-open pixel rectangle still being sampled
type RegionInfo struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// RoundUpdate represents a single round update sent via SSE
type RoundUpdate struct {
	Round      int          `json:"round"`
	Budget     int          `json:"budget"`
	ImageData  string       `json:"imageData"` // Base64 encoded PNG
	Regions    []RegionInfo `json:"regions"`
	Tested     bool         `json:"tested"`
	Converged  int          `json:"converged"`
	Split      int          `json:"split"`
	Retained   int          `json:"retained"`
	Stats      Stats        `json:"stats"`
	IsComplete bool         `json:"isComplete"`
	ElapsedMs  int64        `json:"elapsedMs"`
}

// SSEEvent represents a unified SSE event for thread-safe writing
type SSEEvent struct {
	Type string `json:"type"` // "console", "round", "error", "complete"
	Data string `json:"data"` // JSON-encoded data
}

// regionOutline is the color used to draw active regions on previews
var regionOutline = color.RGBA{R: 255, B: 255, A: 255}

// handleRender handles adaptive rendering with a preview per round streamed via SSE
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	s.setSSEHeaders(w)

	ctx := r.Context()

	// Single writer goroutine; the handler waits for it so nothing touches
	// w after return
	sseEventChan := make(chan SSEEvent, 100)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeSSEEvents(ctx, w, sseEventChan)
	}()

	// Console streaming stops before the event channel is closed
	consoleCtx, stopConsole := context.WithCancel(ctx)
	var consoleWG sync.WaitGroup
	defer func() {
		stopConsole()
		consoleWG.Wait()
		close(sseEventChan)
		<-writerDone
	}()

	if s.console != nil {
		consoleChan := make(chan ConsoleMessage, 50)
		unsubscribe := s.console.Subscribe(consoleChan)
		defer unsubscribe()
		consoleWG.Add(1)
		go func() {
			defer consoleWG.Done()
			s.streamConsoleMessages(consoleCtx, consoleChan, sseEventChan)
		}()
	}

	req, err := s.parseRenderRequest(r)
	if err != nil {
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	src, err := source.New(req.Source, req.Width, req.Height)
	if err != nil {
		s.handleError(ctx, sseEventChan, err.Error())
		return
	}
	ar, err := renderer.NewAdaptiveRenderer(src, req.config())
	if err != nil {
		s.handleError(ctx, sseEventChan, err.Error())
		return
	}

	startTime := time.Now()
	roundChan, errChan := ar.RenderProgressive(ctx)
	for result := range roundChan {
		s.handleRoundComplete(ctx, sseEventChan, result, req, startTime)
	}

	if err := <-errChan; err != nil {
		if ctx.Err() != nil {
			// Client disconnected
			return
		}
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Rendering failed: %v", err))
		return
	}

	select {
	case sseEventChan <- SSEEvent{Type: "complete", Data: "Rendering completed"}:
	case <-ctx.Done():
	}
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// writeSSEEvents writes all SSE events from a single goroutine until the
// channel is closed or the client disconnects
func (s *Server) writeSSEEvents(ctx context.Context, w http.ResponseWriter, sseEventChan <-chan SSEEvent) {
	for {
		select {
		case event, ok := <-sseEventChan:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}

		case <-ctx.Done():
			return
		}
	}
}

// streamConsoleMessages forwards console messages to the SSE channel
func (s *Server) streamConsoleMessages(ctx context.Context, consoleChan <-chan ConsoleMessage, sseEventChan chan<- SSEEvent) {
	for {
		select {
		case consoleMsg := <-consoleChan:
			data, err := json.Marshal(consoleMsg)
			if err != nil {
				continue
			}

			select {
			case sseEventChan <- SSEEvent{Type: "console", Data: string(data)}:
			case <-ctx.Done():
				return
			default:
				// Channel full, skip message to avoid blocking
			}

		case <-ctx.Done():
			return
		}
	}
}

// handleRoundComplete encodes a round result and sends it as a "round" event
func (s *Server) handleRoundComplete(ctx context.Context, sseEventChan chan<- SSEEvent, result renderer.RoundResult, req *RenderRequest, startTime time.Time) {
	if ctx.Err() != nil {
		return
	}

	update := s.roundUpdate(result, req, startTime)
	var img image.Image = result.Image
	if req.Regions && !result.IsLast {
		img = renderer.RegionOverlay(result.Image, result.Regions, regionOutline)
	}
	imageData, err := s.imageToBase64PNG(img)
	if err != nil {
		adaptive.Logger().Error("encoding round image", "round", result.Round.Round, "error", err)
		return
	}
	update.ImageData = imageData

	data, err := json.Marshal(update)
	if err != nil {
		adaptive.Logger().Error("marshaling round update", "round", result.Round.Round, "error", err)
		return
	}

	select {
	case sseEventChan <- SSEEvent{Type: "round", Data: string(data)}:
	case <-ctx.Done():
	}
}

// roundUpdate builds the update for a round without its image
func (s *Server) roundUpdate(result renderer.RoundResult, req *RenderRequest, startTime time.Time) RoundUpdate {
	regions := make([]RegionInfo, len(result.Regions))
	for i, r := range result.Regions {
		regions[i] = RegionInfo{X0: r.StartX, Y0: r.StartY, X1: r.EndX, Y1: r.EndY}
	}

	return RoundUpdate{
		Round:     result.Round.Round,
		Budget:    req.Samples,
		Regions:   regions,
		Tested:    result.Round.Tested,
		Converged: result.Round.Converged,
		Split:     result.Round.Split,
		Retained:  result.Round.Retained,
		Stats: Stats{
			TotalPixels:      result.Stats.TotalPixels,
			TotalSamples:     int64(result.Stats.TotalSamples),
			AverageSamples:   result.Stats.AverageSamples,
			MaxSamples:       result.Stats.MaxSamples,
			MinSamples:       result.Stats.MinSamples,
			MaxSamplesUsed:   result.Stats.MaxSamplesUsed,
			ActiveRegions:    result.Stats.ActiveRegions,
			ConvergedRegions: result.Stats.ConvergedRegions,
			FinalizedPixels:  result.Stats.FinalizedPixels,
		},
		IsComplete: result.IsLast,
		ElapsedMs:  time.Since(startTime).Milliseconds(),
	}
}

// handleError sends an error event to the SSE channel
func (s *Server) handleError(ctx context.Context, sseEventChan chan<- SSEEvent, message string) {
	select {
	case sseEventChan <- SSEEvent{Type: "error", Data: message}:
	case <-ctx.Done():
	}
}
