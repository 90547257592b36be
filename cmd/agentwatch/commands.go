package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loykin/agentwatch"
	"github.com/loykin/agentwatch/internal/config"
	"github.com/loykin/agentwatch/internal/logger"
)

type command struct {
	out io.Writer
	// runner replaces the OS runner; nil uses ps and lsof.
	runner agentwatch.Runner
	now    func() time.Time
}

func newCommand(out io.Writer) *command {
	return &command{out: out, now: time.Now}
}

func (c *command) loadConfig(g GlobalFlags) (*agentwatch.Config, error) {
	cfg, err := agentwatch.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if g.LogLevel != "" {
		cfg.Log.Slog.Level = g.LogLevel
	}
	return cfg, nil
}

// setupLogging installs the configured logger as the slog default.
func setupLogging(lc logger.Config, logFile string) *slog.Logger {
	if logFile != "" {
		lc.File.Path = logFile
	}
	lg := lc.NewSlogger()
	slog.SetDefault(lg)
	return lg
}

// Scan runs one pipeline pass and prints the result.
func (c *command) Scan(ctx context.Context, g GlobalFlags, f ScanFlags) error {
	cfg, err := c.loadConfig(g)
	if err != nil {
		return err
	}
	if f.NoCwd {
		cfg.CwdResolution = config.CwdOff
	}
	lg := setupLogging(cfg.Log, "")

	// transitions are noise for a single pass
	st := agentwatch.NewMemoryStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s, err := agentwatch.NewScannerFromConfig(cfg, st, c.runner, lg)
	if err != nil {
		return err
	}
	if _, err := s.Tick(ctx); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	agents := st.List()
	if f.JSON {
		return printJSON(c.out, agents)
	}
	return printAgents(c.out, agents, c.now())
}

// Matchers prints the matchers the config resolves to.
func (c *command) Matchers(g GlobalFlags, f MatchersFlags) error {
	cfg, err := c.loadConfig(g)
	if err != nil {
		return err
	}
	if f.JSON {
		return printJSON(c.out, cfg.Matchers)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "LABEL\tTYPE\tPATTERN")
	for _, m := range cfg.Matchers {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Label, m.Kind, m.Pattern)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAgents(w io.Writer, agents []agentwatch.AgentProcess, now time.Time) error {
	if len(agents) == 0 {
		_, err := fmt.Fprintln(w, "No agents found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PID\tLABEL\tSTATE\tCPU%\tQUIET\tAGE\tSANDBOX\tLOCATION")
	for _, a := range agents {
		sb := "-"
		if a.Sandboxed {
			sb = a.SandboxType
		}
		loc := a.Repo
		if loc == "" {
			loc = a.Cwd
		}
		if loc == "" {
			loc = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%s\t%s\t%s\t%s\n",
			a.PID, a.Label, a.Heuristic.State, a.CPUPercent,
			shortDuration(time.Duration(a.Heuristic.QuietSeconds*float64(time.Second))),
			shortDuration(now.Sub(a.StartedAt)), sb, loc)
	}
	return tw.Flush()
}

// shortDuration renders d as e.g. "45s", "12m", "3h05m" or "2d04h".
func shortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(math.Round(d.Seconds()))
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh%02dm", secs/3600, (secs%3600)/60)
	default:
		return fmt.Sprintf("%dd%02dh", secs/86400, (secs%86400)/3600)
	}
}

// describeListen turns ":9464" into a dialable hint for log lines.
func describeListen(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "0.0.0.0" + addr
	}
	return addr
}
