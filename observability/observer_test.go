package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mobile-manipulation/conductor/observability"
)

// captureObserver records every event it receives.
type captureObserver struct {
	events *[]observability.Event
}

func (c *captureObserver) OnEvent(ctx context.Context, event observability.Event) {
	*c.events = append(*c.events, event)
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		name  string
		level observability.Level
		want  string
	}{
		{name: "trace range", level: 1, want: "TRACE"},
		{name: "verbose maps to DEBUG", level: observability.LevelVerbose, want: "DEBUG"},
		{name: "info maps to INFO", level: observability.LevelInfo, want: "INFO"},
		{name: "warning maps to WARN", level: observability.LevelWarning, want: "WARN"},
		{name: "error maps to ERROR", level: observability.LevelError, want: "ERROR"},
		{name: "fatal range", level: 21, want: "FATAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level observability.Level
		want  slog.Level
	}{
		{name: "verbose maps to Debug", level: observability.LevelVerbose, want: slog.LevelDebug},
		{name: "info maps to Info", level: observability.LevelInfo, want: slog.LevelInfo},
		{name: "warning maps to Warn", level: observability.LevelWarning, want: slog.LevelWarn},
		{name: "error maps to Error", level: observability.LevelError, want: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.SlogLevel(); got != tt.want {
				t.Errorf("Level(%d).SlogLevel() = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestNoOpObserver(t *testing.T) {
	obs := observability.NoOpObserver{}
	obs.OnEvent(context.Background(), observability.Event{
		Type:      "test.event",
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "test",
		Data:      map[string]any{"key": "value"},
	})
}

func TestMultiObserver(t *testing.T) {
	var events1, events2 []observability.Event

	multi := observability.NewMultiObserver(
		&captureObserver{events: &events1},
		nil,
		&captureObserver{events: &events2},
	)

	multi.OnEvent(context.Background(), observability.Event{
		Type:   "test.event",
		Level:  observability.LevelInfo,
		Source: "test",
	})

	if len(events1) != 1 || len(events2) != 1 {
		t.Errorf("observers received %d/%d events, want 1/1", len(events1), len(events2))
	}
	if events1[0].Type != "test.event" {
		t.Errorf("event type = %q, want %q", events1[0].Type, "test.event")
	}
}

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := observability.NewSlogObserver(logger)

	obs.OnEvent(context.Background(), observability.Event{
		Type:   "server.command.applied",
		Level:  observability.LevelWarning,
		Source: "server",
		Data:   map[string]any{"seq": 42},
	})

	out := buf.String()
	if !strings.Contains(out, "server.command.applied") {
		t.Errorf("log output missing event type: %s", out)
	}
	if !strings.Contains(out, "seq=42") {
		t.Errorf("log output missing data attribute: %s", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("log output missing level: %s", out)
	}
}

func TestEmit(t *testing.T) {
	var events []observability.Event
	obs := &captureObserver{events: &events}

	observability.Emit(context.Background(), obs, "test.emit", observability.LevelInfo, "test", map[string]any{"n": 1})

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.Type != "test.emit" || e.Source != "test" {
		t.Errorf("event = %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("Emit must stamp the event time")
	}
}

func TestEmitNilObserver(t *testing.T) {
	// Must not panic.
	observability.Emit(context.Background(), nil, "test.emit", observability.LevelInfo, "test", nil)
}

func TestRegistry(t *testing.T) {
	if _, err := observability.GetObserver("noop"); err != nil {
		t.Errorf("noop observer missing: %v", err)
	}
	if _, err := observability.GetObserver("slog"); err != nil {
		t.Errorf("slog observer missing: %v", err)
	}
	if _, err := observability.GetObserver("bogus"); err == nil {
		t.Error("expected error for unknown observer")
	}

	var events []observability.Event
	observability.RegisterObserver("capture", &captureObserver{events: &events})
	got, err := observability.GetObserver("capture")
	if err != nil {
		t.Fatalf("GetObserver failed: %v", err)
	}
	got.OnEvent(context.Background(), observability.Event{Type: "x"})
	if len(events) != 1 {
		t.Errorf("registered observer did not receive the event")
	}
}
