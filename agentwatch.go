package agentwatch

import (
	"log/slog"
	"net/http"

	cfg "github.com/loykin/agentwatch/internal/config"
	"github.com/loykin/agentwatch/internal/detector"
	"github.com/loykin/agentwatch/internal/heuristic"
	"github.com/loykin/agentwatch/internal/metrics"
	"github.com/loykin/agentwatch/internal/repo"
	"github.com/loykin/agentwatch/internal/runner"
	"github.com/loykin/agentwatch/internal/scanner"
	iserver "github.com/loykin/agentwatch/internal/server"
	"github.com/loykin/agentwatch/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type AgentProcess = scanner.AgentProcess

type Scanner = scanner.Scanner

type Options = scanner.Options

type Store = scanner.Store

type Matcher = detector.Matcher

type State = heuristic.State

type Config = cfg.Config

type Runner = runner.Runner

type MemoryStore = store.Memory

type Change = store.Change

const (
	StateWorking = heuristic.StateWorking
	StateWaiting = heuristic.StateWaiting
	StateStalled = heuristic.StateStalled
)

func NewScanner(opts Options) (*Scanner, error) { return scanner.New(opts) }

func NewMemoryStore(lg *slog.Logger) *MemoryStore { return store.NewMemory(lg) }

func DefaultMatchers() []Matcher { return detector.DefaultMatchers() }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewRunner returns the OS runner described by c: ps and lsof with the
// configured timeout, or gopsutil for cwd lookups when cwd_source is native.
func NewRunner(c *Config) Runner {
	var r Runner = runner.Exec{Timeout: c.CommandTimeout}
	if c.CwdSource == cfg.CwdSourceNative {
		r = runner.NativeCwd{Base: r}
	}
	return r
}

// RepoSource combines the configured roots with the scanned directories.
func RepoSource(c *Config) repo.Source {
	return repo.Multi{repo.Static(c.Repos.Roots), repo.DirScan{Dirs: c.Repos.ScanDirs}}
}

// NewScannerFromConfig wires a scanner from a loaded config. A nil runner
// selects NewRunner(c).
func NewScannerFromConfig(c *Config, st Store, r Runner, lg *slog.Logger) (*Scanner, error) {
	schemas, err := c.Schemas()
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = NewRunner(c)
	}
	return scanner.New(Options{
		Runner:     r,
		Schemas:    schemas,
		Matchers:   c.Matchers,
		Heuristic:  c.Heuristic,
		CwdEnabled: c.CwdEnabled(),
		CwdTTL:     c.CwdTTL,
		Refresh:    c.Refresh(),
		Repos:      RepoSource(c),
		Store:      st,
		Logger:     lg,
	})
}

// Reconfigure applies the hot-reloadable parts of c to a running scanner.
func Reconfigure(s *Scanner, c *Config) error {
	if err := s.Reconfigure(c.Matchers, c.Heuristic, c.CwdEnabled()); err != nil {
		return err
	}
	s.SetRefresh(c.Refresh())
	return nil
}

// NewOpsServer serves /healthz (and /metrics when withMetrics) on addr.
func NewOpsServer(addr string, s *Scanner, agents *MemoryStore, withMetrics bool) (*http.Server, error) {
	return iserver.NewServer(addr, iserver.NewRouter(s, agents, "", withMetrics))
}

// Metrics helpers
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

type SelfMetricsConfig = metrics.SelfMetricsConfig

type SelfCollector = metrics.SelfCollector

func NewSelfCollector(c SelfMetricsConfig) *SelfCollector { return metrics.NewSelfCollector(c) }
