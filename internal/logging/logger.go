package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bgmrules/internal/config"
)

// LogFileName is the file created inside the configured log directory.
const LogFileName = "bgmrules.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Stderr mirrors output to standard error. It is implied when neither
	// File nor Writer is set.
	Stderr bool
	// File is appended to, created along with its directory when missing.
	File   string
	Writer io.Writer
}

// New constructs a slog logger using the provided options. Caller locations
// are attached at debug level.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))

	sink, err := opts.sink()
	if err != nil {
		return nil, err
	}
	addSource := levelVar.Level() <= slog.LevelDebug

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		handler = newPrettyHandler(sink, levelVar, addSource)
	case "json":
		handler = newJSONHandler(sink, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(handler), nil
}

// NewFromConfig creates a logger that writes to stderr and, when a log
// directory is configured, to bgmrules.log inside it.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Stderr: true})
	}
	opts := Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Stderr: true}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		opts.File = filepath.Join(dir, LogFileName)
	}
	return New(opts)
}

func (o Options) sink() (io.Writer, error) {
	var writers []io.Writer
	if o.Stderr || (o.File == "" && o.Writer == nil) {
		writers = append(writers, os.Stderr)
	}
	if path := strings.TrimSpace(o.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		writers = append(writers, file)
	}
	if o.Writer != nil {
		writers = append(writers, o.Writer)
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	switch value := strings.ToLower(strings.TrimSpace(level)); value {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	default:
		if err := parsed.UnmarshalText([]byte(value)); err != nil {
			return slog.LevelInfo
		}
		return parsed
	}
}
