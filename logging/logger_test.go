package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	if logger == nil {
		t.Fatal("expected logger")
	}
	logger.Info("discarded")
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Warn("command rejected", "error", errors.New("no actuator"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered: %s", out)
	}
	if !strings.Contains(out, `err="no actuator"`) {
		t.Errorf("expected error renamed to err: %s", out)
	}
}

func TestForSession(t *testing.T) {
	var buf bytes.Buffer
	ForSession(NewWithWriter(&buf, slog.LevelDebug), "ab12").Info("analysis complete")

	if !strings.Contains(buf.String(), "session=ab12") {
		t.Errorf("expected session attribute: %s", buf.String())
	}
}
