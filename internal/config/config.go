package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/loykin/agentwatch/internal/cwd"
	"github.com/loykin/agentwatch/internal/detector"
	"github.com/loykin/agentwatch/internal/heuristic"
	"github.com/loykin/agentwatch/internal/logger"
	"github.com/loykin/agentwatch/internal/proctable"
	"github.com/loykin/agentwatch/internal/runner"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix is the prefix of environment overrides, e.g. AGENTWATCH_REFRESH_SECONDS.
const EnvPrefix = "AGENTWATCH"

const (
	DefaultRefreshSeconds = 2.0
	DefaultMetricsListen  = ":9464"
	DefaultServerListen   = "127.0.0.1:8787"
	DefaultSelfInterval   = 10 * time.Second

	CwdOn  = "on"
	CwdOff = "off"

	CwdSourceLsof   = "lsof"
	CwdSourceNative = "native"
)

// Config represents the top-level configuration file.
type Config struct {
	RefreshSeconds float64            `toml:"refresh_seconds" mapstructure:"refresh_seconds"`
	CwdResolution  string             `toml:"cwd_resolution" mapstructure:"cwd_resolution"`
	CwdSource      string             `toml:"cwd_source" mapstructure:"cwd_source"`
	CwdTTL         time.Duration      `toml:"cwd_ttl" mapstructure:"cwd_ttl"`
	CommandTimeout time.Duration      `toml:"command_timeout" mapstructure:"command_timeout"`
	PSSchemas      []string           `toml:"ps_schemas" mapstructure:"ps_schemas"`
	Heuristic      heuristic.Config   `toml:"heuristic" mapstructure:"heuristic"`
	Matchers       []detector.Matcher `toml:"matchers" mapstructure:"matchers"`
	Repos          RepoConfig         `toml:"repos" mapstructure:"repos"`
	Log            logger.Config      `toml:"log" mapstructure:"log"`
	Metrics        MetricsConfig      `toml:"metrics" mapstructure:"metrics"`
	Server         ServerConfig       `toml:"server" mapstructure:"server"`
}

type RepoConfig struct {
	Roots    []string `toml:"roots" mapstructure:"roots"`
	ScanDirs []string `toml:"scan_dirs" mapstructure:"scan_dirs"`
}

type MetricsConfig struct {
	Enabled      bool          `toml:"enabled" mapstructure:"enabled"`
	Listen       string        `toml:"listen" mapstructure:"listen"`
	SelfInterval time.Duration `toml:"self_interval" mapstructure:"self_interval"`
}

// ServerConfig is the ops listener. An empty Listen disables it.
type ServerConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

// Refresh returns the poll interval as a duration.
func (c *Config) Refresh() time.Duration {
	return time.Duration(c.RefreshSeconds * float64(time.Second))
}

// CwdEnabled reports whether cwd lookups should run.
func (c *Config) CwdEnabled() bool {
	return c.CwdResolution != CwdOff
}

// Schemas resolves PSSchemas to parser schemas.
func (c *Config) Schemas() ([]proctable.Schema, error) {
	return proctable.SchemasByName(c.PSSchemas)
}

func setDefaults(v *viper.Viper) {
	hc := heuristic.DefaultConfig()
	lc := logger.DefaultConfig()
	v.SetDefault("refresh_seconds", DefaultRefreshSeconds)
	v.SetDefault("cwd_resolution", CwdOn)
	v.SetDefault("cwd_source", CwdSourceLsof)
	v.SetDefault("cwd_ttl", cwd.DefaultTTL)
	v.SetDefault("command_timeout", runner.DefaultTimeout)
	v.SetDefault("ps_schemas", []string{})
	v.SetDefault("heuristic.active_cpu_pct", hc.ActiveCPUPercent)
	v.SetDefault("heuristic.stalled_seconds", hc.StalledSeconds)
	v.SetDefault("repos.roots", []string{})
	v.SetDefault("repos.scan_dirs", []string{})
	v.SetDefault("log.level", lc.Slog.Level)
	v.SetDefault("log.format", lc.Slog.Format)
	v.SetDefault("log.color", lc.Slog.Color)
	v.SetDefault("log.timestamps", lc.Slog.TimeStamps)
	v.SetDefault("log.source", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", DefaultMetricsListen)
	v.SetDefault("metrics.self_interval", DefaultSelfInterval)
	v.SetDefault("server.listen", DefaultServerListen)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		// TOML unless the extension says otherwise
		if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext == "" || ext == "conf" {
			v.SetConfigType("toml")
		}
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(c.Matchers) == 0 {
		c.Matchers = detector.DefaultMatchers()
	}
	c.CwdResolution = strings.ToLower(strings.TrimSpace(c.CwdResolution))
	switch c.CwdResolution {
	case "true", "yes", "1":
		c.CwdResolution = CwdOn
	case "false", "no", "0":
		c.CwdResolution = CwdOff
	}
	c.CwdSource = strings.ToLower(strings.TrimSpace(c.CwdSource))
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads path (TOML by default; YAML/JSON by extension) on top of the
// defaults and AGENTWATCH_ environment overrides. An empty path loads
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return decode(v)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c, err := decode(newViper(""))
	if err != nil {
		// defaults always validate; only a broken environment gets here
		slog.Warn("Ignoring invalid environment overrides", "error", err)
		c, _ = decode(newBareViper())
	}
	return c
}

func newBareViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.RefreshSeconds <= 0 {
		errs = append(errs, fmt.Errorf("refresh_seconds must be positive, got %v", c.RefreshSeconds))
	}
	if c.CwdResolution != CwdOn && c.CwdResolution != CwdOff {
		errs = append(errs, fmt.Errorf("cwd_resolution must be %q or %q, got %q", CwdOn, CwdOff, c.CwdResolution))
	}
	if c.CwdSource != CwdSourceLsof && c.CwdSource != CwdSourceNative {
		errs = append(errs, fmt.Errorf("cwd_source must be %q or %q, got %q", CwdSourceLsof, CwdSourceNative, c.CwdSource))
	}
	if c.CwdTTL < 0 {
		errs = append(errs, fmt.Errorf("cwd_ttl must not be negative"))
	}
	if c.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("command_timeout must not be negative"))
	}
	if c.Heuristic.ActiveCPUPercent < 0 {
		errs = append(errs, fmt.Errorf("heuristic.active_cpu_pct must not be negative"))
	}
	if c.Heuristic.StalledSeconds <= 0 {
		errs = append(errs, fmt.Errorf("heuristic.stalled_seconds must be positive"))
	}
	if err := detector.ValidateMatchers(c.Matchers); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Schemas(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Slog.Level) {
	case logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, "warning", logger.LevelError:
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Slog.Level))
	}
	switch strings.ToLower(c.Log.Slog.Format) {
	case logger.FormatText, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Slog.Format))
	}
	if c.Metrics.SelfInterval < 0 {
		errs = append(errs, fmt.Errorf("metrics.self_interval must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Watcher reloads a config file whenever it changes on disk.
type Watcher struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
	cur  *Config
}

// Watch loads path and invokes onChange with every subsequent valid
// revision. Invalid revisions are logged and the previous config stays
// current. The underlying watch lives as long as the process.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch requires a config file")
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	w := &Watcher{v: v, path: path, cur: cfg}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, ok := w.reload()
		if ok && onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()
	return w, nil
}

func (w *Watcher) reload() (*Config, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	next, err := decode(w.v)
	if err != nil {
		slog.Warn("Config reload rejected", "path", w.path, "error", err)
		return nil, false
	}
	w.cur = next
	slog.Info("Config reloaded", "path", w.path, "matchers", len(next.Matchers))
	return next, true
}

// Current returns the last valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur
}
