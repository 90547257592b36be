package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Level and format names accepted in configuration.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatText = "text"
	FormatJSON = "json"
)

// SlogConfig controls the structured application logger.
type SlogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	TimeStamps bool   `mapstructure:"timestamps"`
	Source     bool   `mapstructure:"source"`
}

// FileConfig describes an optional rotating log file.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Path       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // megabytes before rotation (default 10)
	MaxBackups int    `mapstructure:"max_backups"`  // number of backups to keep (default 3)
	MaxAgeDays int    `mapstructure:"max_age_days"` // days to keep (default 7)
	Compress   bool   `mapstructure:"compress"`     // Gzip rotated files
}

// Config is the unified logging configuration.
type Config struct {
	Slog SlogConfig `mapstructure:",squash"`
	File FileConfig `mapstructure:",squash"`
}

// DefaultConfig logs text at info level with timestamps to stderr.
func DefaultConfig() Config {
	return Config{Slog: SlogConfig{Level: LevelInfo, Format: FormatText, TimeStamps: true}}
}

// ParseLevel maps a level name to slog.Level; unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "warning":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FileWriter returns a rotating writer for File.Path, or nil when unset.
func (c Config) FileWriter() io.WriteCloser {
	if c.File.Path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.File.Path,
		MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.File.Compress,
	}
}

// NewSlogger builds a logger writing to the rotating file when one is
// configured, otherwise to stderr.
func (c Config) NewSlogger() *slog.Logger {
	var w io.Writer = os.Stderr
	color := c.Slog.Color
	if fw := c.FileWriter(); fw != nil {
		w = fw
		color = false // no escape codes in files
	}
	return slog.New(c.handler(w, color))
}

// NewSloggerTo builds a logger on an explicit writer.
func (c Config) NewSloggerTo(w io.Writer) *slog.Logger {
	return slog.New(c.handler(w, c.Slog.Color))
}

func (c Config) handler(w io.Writer, color bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(c.Slog.Level),
		AddSource: c.Slog.Source,
	}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}
	}
	if strings.EqualFold(c.Slog.Format, FormatJSON) {
		return slog.NewJSONHandler(w, opts)
	}
	if color {
		return NewColorTextHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
