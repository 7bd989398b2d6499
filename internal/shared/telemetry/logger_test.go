package telemetry

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInfoWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Logger()
	Use(zap.New(core))
	t.Cleanup(func() { Use(prev) })

	Info("raw_file.status", map[string]any{
		"raw_file_id": "rf-1",
		"status":      "classified",
	})
	Error("extraction.failed", map[string]any{"error": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "raw_file.status" {
		t.Fatalf("unexpected message: %s", entries[0].Message)
	}
	ctx := entries[0].ContextMap()
	if ctx["raw_file_id"] != "rf-1" || ctx["status"] != "classified" {
		t.Fatalf("unexpected fields: %v", ctx)
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level, got %s", entries[1].Level)
	}
	if entries[1].ContextMap()["error"] != "boom" {
		t.Fatalf("expected error field, got %v", entries[1].ContextMap())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{in: "debug", want: zapcore.DebugLevel},
		{in: " WARN ", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "", want: zapcore.InfoLevel},
		{in: "verbose", want: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Fatalf("parseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
