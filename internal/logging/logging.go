// Package logging builds the process slog.Logger: a tint console handler,
// optionally teed into a lumberjack-rotated file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level and destination.
type Options struct {
	Level      string
	File       string // empty: console only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	NoColor    bool
}

// New builds a logger writing to console, and to a rotating file when
// opts.File is set. The returned closer releases the file, if any.
func New(console io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level := ParseLevel(opts.Level)
	if strings.TrimSpace(opts.File) == "" {
		return newLogger(console, level, opts.NoColor), nopCloser{}, nil
	}

	if opts.MaxSizeMB <= 0 || opts.MaxBackups <= 0 || opts.MaxAgeDays <= 0 {
		return nil, nil, fmt.Errorf(
			"invalid log rotation: size=%d backups=%d age_days=%d",
			opts.MaxSizeMB, opts.MaxBackups, opts.MaxAgeDays,
		)
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	// Color codes would end up in the file.
	logger := newLogger(io.MultiWriter(console, file), level, true)
	logger.Debug("file logging enabled", "path", file.Filename)
	return logger, file, nil
}

func newLogger(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  level == slog.LevelDebug,
		NoColor:    noColor,
	}))
}

// ParseLevel maps a config string to a slog level; unknown values are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
