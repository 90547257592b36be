// Package heuristic classifies agent activity from CPU samples over time.
package heuristic

import (
	"math"
	"time"
)

// State is the activity classification of one agent process.
type State string

const (
	StateWorking State = "WORKING"
	StateWaiting State = "WAITING"
	StateStalled State = "STALLED"
)

const (
	// StartupGrace is credited to a process the first time it is seen idle,
	// so a freshly started agent is not immediately counted as quiet.
	StartupGrace = 5 * time.Second
	// MinStallAgeSeconds is the minimum process age before STALLED is possible.
	MinStallAgeSeconds = 10

	DefaultActiveCPUPercent = 1.5
	DefaultStalledSeconds   = 120
)

// Config holds the thresholds of the state machine.
type Config struct {
	ActiveCPUPercent float64 `mapstructure:"active_cpu_pct"`
	StalledSeconds   float64 `mapstructure:"stalled_seconds"`
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{ActiveCPUPercent: DefaultActiveCPUPercent, StalledSeconds: DefaultStalledSeconds}
}

// Result is the state emitted for one sample together with its inputs.
type Result struct {
	State        State   `json:"state"`
	CPUPercent   float64 `json:"cpu_percent"`
	QuietSeconds float64 `json:"quiet_seconds"`
}

// Tracker remembers when each pid was last active. It is owned by a single
// scanner and is not safe for concurrent use.
type Tracker struct {
	cfg          Config
	lastActiveAt map[int]time.Time
}

func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, lastActiveAt: make(map[int]time.Time)}
}

// SetConfig swaps thresholds; remembered timestamps are kept.
func (t *Tracker) SetConfig(cfg Config) { t.cfg = cfg }

func (t *Tracker) Config() Config { return t.cfg }

// Observe evaluates one CPU sample for pid at time now.
func (t *Tracker) Observe(pid int, cpuPercent float64, elapsedSeconds int64, now time.Time) Result {
	if cpuPercent >= t.cfg.ActiveCPUPercent {
		t.lastActiveAt[pid] = now
		return Result{State: StateWorking, CPUPercent: cpuPercent, QuietSeconds: 0}
	}
	last, seen := t.lastActiveAt[pid]
	if !seen {
		last = now.Add(-time.Duration(elapsedSeconds) * time.Second).Add(StartupGrace)
		t.lastActiveAt[pid] = last
	}
	quiet := math.Max(0, now.Sub(last).Seconds())
	state := StateWaiting
	if quiet > t.cfg.StalledSeconds && elapsedSeconds > MinStallAgeSeconds {
		state = StateStalled
	}
	return Result{State: state, CPUPercent: cpuPercent, QuietSeconds: quiet}
}

// Prune forgets every pid not present in alive. A pid that comes back
// later is treated as a new process and gets a fresh grace period.
func (t *Tracker) Prune(alive map[int]struct{}) int {
	removed := 0
	for pid := range t.lastActiveAt {
		if _, ok := alive[pid]; !ok {
			delete(t.lastActiveAt, pid)
			removed++
		}
	}
	return removed
}

// Len is the number of remembered pids.
func (t *Tracker) Len() int { return len(t.lastActiveAt) }
