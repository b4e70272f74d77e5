// Package logging builds the slog logger of a run from its configuration.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/syntrixbase/indexsync/internal/config"
)

// Log file names inside LoggingConfig.Dir.
const (
	MainLogFile  = "indexsync.log"
	ErrorLogFile = "errors.log"
)

// Option configures NewLogger.
type Option func(*options)

type options struct {
	console io.Writer
}

// WithConsole redirects console output, which defaults to stderr.
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// NewLogger creates a logger for cfg. The returned closer flushes and
// closes the log files; it is never nil.
func NewLogger(cfg config.LoggingConfig, opts ...Option) (*slog.Logger, io.Closer, error) {
	o := options{console: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	var handlers []slog.Handler
	var files closers

	if cfg.Console.Enabled {
		handlers = append(handlers, createHandler(o.console, orDefault(cfg.Console.Format, cfg.Format), ParseLevel(orDefault(cfg.Console.Level, cfg.Level))))
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		format := orDefault(cfg.File.Format, cfg.Format)

		mainFile := newRotatingFile(cfg, MainLogFile)
		files = append(files, mainFile)
		handlers = append(handlers, createHandler(mainFile, format, ParseLevel(orDefault(cfg.File.Level, cfg.Level))))

		// warnings and errors only, whatever the file level
		errorFile := newRotatingFile(cfg, ErrorLogFile)
		files = append(files, errorFile)
		handlers = append(handlers, NewLevelFilter(createHandler(errorFile, format, slog.LevelWarn), slog.LevelWarn))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, nil)
	case 1:
		handler = handlers[0]
	default:
		handler = NewMultiHandler(handlers...)
	}

	return slog.New(handler), files, nil
}

// ParseLevel maps a configured level name to a slog level. Unknown names
// map to info.
func ParseLevel(level string) slog.Level {
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

// ApplyVerbosity lowers the configured level one step per verbose flag and
// raises it one step per quiet flag.
func ApplyVerbosity(cfg *config.LoggingConfig, verbose, quiet int) {
	if verbose == quiet {
		return
	}
	cfg.SetLevel(config.ShiftLevel(cfg.Level, quiet-verbose))
}

func newRotatingFile(cfg config.LoggingConfig, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
}

func createHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for _, cl := range c {
		if err := cl.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
