package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loykin/agentwatch/internal/heuristic"
	"github.com/loykin/agentwatch/internal/scanner"
)

// Change summarizes the difference between two consecutive snapshots.
type Change struct {
	Added        []int
	Removed      []int
	StateChanged []int
}

func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.StateChanged) == 0
}

// Diff compares snapshots by pid. Slices are sorted ascending.
func Diff(prev, next map[int]scanner.AgentProcess) Change {
	var c Change
	for pid, a := range next {
		old, ok := prev[pid]
		switch {
		case !ok:
			c.Added = append(c.Added, pid)
		case old.Heuristic.State != a.Heuristic.State:
			c.StateChanged = append(c.StateChanged, pid)
		}
	}
	for pid := range prev {
		if _, ok := next[pid]; !ok {
			c.Removed = append(c.Removed, pid)
		}
	}
	sort.Ints(c.Added)
	sort.Ints(c.Removed)
	sort.Ints(c.StateChanged)
	return c
}

// Memory keeps the latest agent snapshot in memory and logs transitions.
type Memory struct {
	mu        sync.RWMutex
	agents    map[int]scanner.AgentProcess
	updatedAt time.Time
	updates   uint64
	onChange  func(Change, map[int]scanner.AgentProcess)
	log       *slog.Logger
}

func NewMemory(lg *slog.Logger) *Memory {
	if lg == nil {
		lg = slog.Default()
	}
	return &Memory{agents: map[int]scanner.AgentProcess{}, log: lg.With("component", "store")}
}

// OnChange registers fn to run after every update that changed something.
// fn must not call back into the store.
func (m *Memory) OnChange(fn func(Change, map[int]scanner.AgentProcess)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// UpdateAgents replaces the snapshot.
func (m *Memory) UpdateAgents(agents map[int]scanner.AgentProcess) {
	next := make(map[int]scanner.AgentProcess, len(agents))
	for pid, a := range agents {
		next[pid] = a
	}

	m.mu.Lock()
	prev := m.agents
	m.agents = next
	m.updatedAt = time.Now()
	m.updates++
	fn := m.onChange
	m.mu.Unlock()

	c := Diff(prev, next)
	for _, pid := range c.Added {
		a := next[pid]
		m.log.Info("Agent appeared", "pid", pid, "label", a.Label, "state", a.Heuristic.State, "repo", a.Repo)
	}
	for _, pid := range c.Removed {
		m.log.Info("Agent exited", "pid", pid, "label", prev[pid].Label)
	}
	for _, pid := range c.StateChanged {
		a := next[pid]
		lvl := slog.LevelDebug
		if a.Heuristic.State == heuristic.StateStalled {
			lvl = slog.LevelWarn
		}
		m.log.Log(context.Background(), lvl, "Agent state changed", "pid", pid, "label", a.Label,
			"from", prev[pid].Heuristic.State, "to", a.Heuristic.State, "quiet_seconds", a.Heuristic.QuietSeconds)
	}
	if fn != nil && !c.Empty() {
		fn(c, next)
	}
}

// Snapshot returns a copy of the current agents.
func (m *Memory) Snapshot() map[int]scanner.AgentProcess {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]scanner.AgentProcess, len(m.agents))
	for pid, a := range m.agents {
		out[pid] = a
	}
	return out
}

// List returns the current agents ordered by pid.
func (m *Memory) List() []scanner.AgentProcess {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]scanner.AgentProcess, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// UpdatedAt is the time of the last update; zero if none.
func (m *Memory) UpdatedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updatedAt
}

// Updates counts UpdateAgents calls.
func (m *Memory) Updates() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates
}
