package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a JSON slog.Logger writing to stdout and a rotated log file.
// An empty file path logs to stdout only.
func NewLogger(level, file string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if file == "" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	fileLogger := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}

	return slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, fileLogger), opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
