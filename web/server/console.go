package server

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ConsoleMessage represents a console message with timestamp
type ConsoleMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // "debug", "info", "warning", "error"
}

// consoleHub fans records out to every subscribed render
type consoleHub struct {
	mu          sync.Mutex
	subscribers map[chan<- ConsoleMessage]struct{}
}

// ConsoleHandler is a slog.Handler that forwards records to the web console
// of every active render and then to an optional next handler for server logs.
type ConsoleHandler struct {
	next  slog.Handler
	level slog.Leveler
	hub   *consoleHub
	attrs []slog.Attr
}

// NewConsoleHandler creates a console handler. Records are also passed to
// next when it is non-nil.
func NewConsoleHandler(next slog.Handler, level slog.Leveler) *ConsoleHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &ConsoleHandler{
		next:  next,
		level: level,
		hub:   &consoleHub{subscribers: make(map[chan<- ConsoleMessage]struct{})},
	}
}

// Subscribe registers a channel to receive console messages. The returned
// function removes it again.
func (h *ConsoleHandler) Subscribe(ch chan<- ConsoleMessage) func() {
	h.hub.mu.Lock()
	h.hub.subscribers[ch] = struct{}{}
	h.hub.mu.Unlock()

	return func() {
		h.hub.mu.Lock()
		delete(h.hub.subscribers, ch)
		h.hub.mu.Unlock()
	}
}

// Enabled implements slog.Handler
func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.level.Level() {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *ConsoleHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= h.level.Level() {
		h.broadcast(ConsoleMessage{
			Message:   h.format(record),
			Timestamp: record.Time,
			Level:     levelName(record.Level),
		})
	}
	if h.next != nil && h.next.Enabled(ctx, record.Level) {
		return h.next.Handle(ctx, record)
	}
	return nil
}

// WithAttrs implements slog.Handler
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return &clone
}

// WithGroup implements slog.Handler. Groups only affect the next handler;
// console lines stay flat.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}

// broadcast sends without blocking; a full channel drops the message
func (h *ConsoleHandler) broadcast(msg ConsoleMessage) {
	h.hub.mu.Lock()
	defer h.hub.mu.Unlock()
	for ch := range h.hub.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// format renders "message key=value ..." for the console
func (h *ConsoleHandler) format(record slog.Record) string {
	var sb strings.Builder
	sb.WriteString(record.Message)
	appendAttr := func(a slog.Attr) bool {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		sb.WriteString(a.Value.Resolve().String())
		return true
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	record.Attrs(appendAttr)
	return sb.String()
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warning"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
