// Package logging builds the process root logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds logger configuration.
type Config struct {
	// Level is a zerolog level name. Default: info
	Level string

	// Format is json or console. Default: json
	Format string

	// File, when set, also writes JSON logs to a rotating file.
	File       string
	MaxSizeMB  int // Default: 50
	MaxBackups int // Default: 5
	MaxAgeDays int // Default: 14
	Compress   bool

	Service string
	Version string

	// Stdout replaces os.Stdout, for tests.
	Stdout io.Writer
}

// New returns the root logger and a function that flushes and closes any
// log file. The close function is never nil.
func New(cfg Config) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var console io.Writer
	switch cfg.Format {
	case "", FormatJSON:
		console = stdout
	case FormatConsole:
		console = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), noop, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	writers := []io.Writer{console}
	closer := noop
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
			Compress:   cfg.Compress,
		}
		writers = append(writers, file)
		closer = file.Close
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}

	return ctx.Logger(), closer, nil
}

func noop() error { return nil }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
