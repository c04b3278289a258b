// Package logger builds a structured logger for the engine and its
// surrounding tooling: a severity-levels-over-slog convention routed
// through a simple, directly constructed handler rather than a
// package-level singleton, and optionally rotated through lumberjack
// instead of a bare file.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cozis/cozyfs/cfg"
)

// severityKey replaces slog's default "level" attribute name with
// "severity", matching the naming Cloud Logging expects.
const severityKey = "severity"

// New builds a *slog.Logger per c: JSON or text handler, writing to a
// rotating file if c.FilePath is set, otherwise to stderr.
func New(c cfg.LogConfig) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	var w io.Writer = os.Stderr
	if c.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameLevelToSeverity,
	}

	var handler slog.Handler
	switch strings.ToLower(c.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", c.Format)
	}

	return slog.New(handler), nil
}

func renameLevelToSeverity(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		a.Key = severityKey
	}
	return a
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logger: unknown level %q", level)
	}
}
