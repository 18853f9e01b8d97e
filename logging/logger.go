package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys shared by the workbench loggers
const (
	KeySession = "session"
	KeyError   = "err"
)

// New builds the workbench logger on stderr, leaving stdout to the MCP stdio transport.
func New(level slog.Level) *slog.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter builds a text logger writing to w. Errors logged under
// "error" are renamed to "err" so every layer reports them the same way.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = KeyError
			}
			return a
		},
	}))
}

// NewNop returns a logger that drops everything; engines and services default to it.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ForSession scopes a logger to one workbench session
func ForSession(logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With(KeySession, sessionID)
}

// ParseLevel maps a flag value onto a slog level; unknown values mean info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
