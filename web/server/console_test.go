package server

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestConsoleHandler_BasicLogging(t *testing.T) {
	handler := NewConsoleHandler(nil, slog.LevelInfo)
	messageChan := make(chan ConsoleMessage, 10)
	defer handler.Subscribe(messageChan)()

	logger := slog.New(handler)
	logger.Info("round complete", "round", 4, "active", 12)

	select {
	case msg := <-messageChan:
		expected := "round complete round=4 active=12"
		if msg.Message != expected {
			t.Errorf("Expected message '%s', got '%s'", expected, msg.Message)
		}
		if msg.Level != "info" {
			t.Errorf("Expected level 'info', got '%s'", msg.Level)
		}
		if time.Since(msg.Timestamp) > time.Second {
			t.Errorf("Timestamp seems too old: %v", msg.Timestamp)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for console message")
	}
}

func TestConsoleHandler_Levels(t *testing.T) {
	handler := NewConsoleHandler(nil, slog.LevelInfo)
	messageChan := make(chan ConsoleMessage, 10)
	defer handler.Subscribe(messageChan)()

	logger := slog.New(handler)
	logger.Debug("hidden")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	expected := []string{"info", "warning", "error"}
	for i, level := range expected {
		select {
		case msg := <-messageChan:
			if msg.Level != level {
				t.Errorf("Message %d: expected level '%s', got '%s'", i, level, msg.Level)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for message %d", i+1)
		}
	}

	select {
	case msg := <-messageChan:
		t.Errorf("Expected debug record to be filtered, got %+v", msg)
	default:
	}
}

func TestConsoleHandler_WithAttrs(t *testing.T) {
	handler := NewConsoleHandler(nil, slog.LevelInfo)
	messageChan := make(chan ConsoleMessage, 10)
	defer handler.Subscribe(messageChan)()

	logger := slog.New(handler).With("render", "r1")
	logger.Info("finalized", "pixels", 64)

	msg := <-messageChan
	expected := "finalized render=r1 pixels=64"
	if msg.Message != expected {
		t.Errorf("Expected message '%s', got '%s'", expected, msg.Message)
	}
}

func TestConsoleHandler_MultipleSubscribers(t *testing.T) {
	handler := NewConsoleHandler(nil, slog.LevelInfo)
	first := make(chan ConsoleMessage, 1)
	second := make(chan ConsoleMessage, 1)
	defer handler.Subscribe(first)()
	unsubscribe := handler.Subscribe(second)

	slog.New(handler).Info("shared")
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("Expected both subscribers to receive the message, got %d and %d", len(first), len(second))
	}
	<-first
	<-second

	unsubscribe()
	slog.New(handler).Info("only first")
	if len(first) != 1 {
		t.Errorf("Expected first subscriber to receive message, got %d", len(first))
	}
	if len(second) != 0 {
		t.Errorf("Expected unsubscribed channel to stay empty, got %d", len(second))
	}
}

func TestConsoleHandler_ChannelFull(t *testing.T) {
	handler := NewConsoleHandler(nil, slog.LevelInfo)
	messageChan := make(chan ConsoleMessage, 1)
	defer handler.Subscribe(messageChan)()

	logger := slog.New(handler)
	logger.Info("Message 1")
	// Channel is full; these must not block
	logger.Info("Message 2")
	logger.Info("Message 3")

	msg := <-messageChan
	if msg.Message != "Message 1" {
		t.Errorf("Expected first message to be kept, got '%s'", msg.Message)
	}
}

func TestConsoleHandler_NoSubscribers(t *testing.T) {
	handler := NewConsoleHandler(nil, nil)

	// Must not panic without subscribers or next handler
	slog.New(handler).Info("Test message with no subscribers")
}

func TestConsoleHandler_ForwardsToNext(t *testing.T) {
	var buf bytes.Buffer
	next := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewConsoleHandler(next, slog.LevelInfo)
	messageChan := make(chan ConsoleMessage, 10)
	defer handler.Subscribe(messageChan)()

	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug to be enabled through the next handler")
	}

	logger := slog.New(handler).WithGroup("sampler")
	logger.Debug("server only", "round", 2)

	if !strings.Contains(buf.String(), "sampler.round=2") {
		t.Errorf("Expected next handler to receive grouped record, got %q", buf.String())
	}
	if len(messageChan) != 0 {
		t.Errorf("Expected debug record to stay off the console, got %d messages", len(messageChan))
	}
}
