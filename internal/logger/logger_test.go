package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFileWriter_Defaults(t *testing.T) {
	cfg := Config{}
	if w := cfg.FileWriter(); w != nil {
		t.Fatalf("expected nil writer when no file is set")
	}
	cfg = Config{File: FileConfig{Path: "x"}}
	l, ok := cfg.FileWriter().(*lj.Logger)
	if !ok {
		t.Fatalf("writer is not lumberjack.Logger")
	}
	if l.MaxSize != 10 || l.MaxBackups != 3 || l.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
}

func TestFileWriter_Overrides(t *testing.T) {
	cfg := Config{File: FileConfig{Path: "x2", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}}
	l := cfg.FileWriter().(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 11 || !l.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", l.MaxSize, l.MaxBackups, l.MaxAge, l.Compress)
	}
}

func TestNewSlogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentwatch.log")
	cfg := Config{Slog: SlogConfig{Level: LevelInfo, Format: FormatText, Color: true}, File: FileConfig{Path: path}}
	lg := cfg.NewSlogger()
	lg.Info("tick complete", "agents", 2)
	lg.Debug("filtered out")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "tick complete") || !strings.Contains(s, "agents=2") {
		t.Fatalf("unexpected log contents: %s", s)
	}
	if strings.Contains(s, "filtered out") {
		t.Fatalf("debug record should be filtered at info level")
	}
	if strings.Contains(s, "\033[") || strings.Contains(s, `\x1b[`) {
		t.Fatalf("file output must not contain color codes")
	}
}

func TestNewSloggerTo_JSONWithoutTimestamps(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelDebug, Format: FormatJSON}}
	cfg.NewSloggerTo(&buf).Debug("hello", "pid", 42)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %v: %s", err, buf.String())
	}
	if rec["msg"] != "hello" || rec["pid"] != float64(42) {
		t.Fatalf("unexpected record: %v", rec)
	}
	if _, ok := rec["time"]; ok {
		t.Fatalf("time should be dropped when timestamps are off")
	}
}

func TestColorTextHandler_PrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelInfo, Color: true, TimeStamps: true}}
	cfg.NewSloggerTo(&buf).Warn("stalled")
	s := buf.String()
	// the text handler may quote the escape sequence
	if !strings.Contains(s, "WARN") || !(strings.Contains(s, "\033[33m") || strings.Contains(s, `\x1b[33m`)) {
		t.Fatalf("expected yellow WARN prefix, got %q", s)
	}
	if !strings.Contains(s, "time=") {
		t.Fatalf("expected timestamp, got %q", s)
	}
}
