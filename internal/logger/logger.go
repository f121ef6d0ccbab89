// Package logger provides a configured zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the log file.
const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

// New returns a logger for service writing JSON lines to stderr. Stdout is
// left alone: the MCP stdio transport and CLI output own it.
func New(service, level string) zerolog.Logger {
	return NewWithWriter(os.Stderr, service, level)
}

// NewWithFile is New with lines sent to a rotating file at path instead of
// stderr. At debug level lines go to both. An empty path behaves like New.
// The returned closer releases the file.
func NewWithFile(service, level, path string) (zerolog.Logger, io.Closer, error) {
	if strings.TrimSpace(path) == "" {
		return New(service, level), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("creating log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}

	var w io.Writer = file
	if ParseLevel(level) <= zerolog.DebugLevel {
		w = io.MultiWriter(os.Stderr, file)
	}
	return NewWithWriter(w, service, level), file, nil
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, service, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Str("service", service).
		Timestamp().
		Logger()
}

// ParseLevel maps a config string to a zerolog level. Unknown or empty
// values mean info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
