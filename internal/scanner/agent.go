package scanner

import (
	"time"

	"github.com/loykin/agentwatch/internal/heuristic"
)

// AgentProcess is one detected agent session as pushed to the store.
type AgentProcess struct {
	PID         int              `json:"pid"`
	Label       string           `json:"label"`
	Cmdline     string           `json:"cmdline"`
	Exe         string           `json:"exe"`
	StartedAt   time.Time        `json:"started_at"`
	CPUPercent  float64          `json:"cpu_percent"`
	RSSKB       *int64           `json:"rss_kb,omitempty"`
	Threads     *int             `json:"threads,omitempty"`
	TTY         string           `json:"tty,omitempty"`
	Cwd         string           `json:"cwd,omitempty"`
	Repo        string           `json:"repo,omitempty"`
	Heuristic   heuristic.Result `json:"heuristic"`
	Sandboxed   bool             `json:"sandboxed"`
	SandboxType string           `json:"sandbox_type,omitempty"`
}

// Store receives the full agent map once per completed tick. UpdateAgents
// may query the scanner; it must not call Stop on the same goroutine.
type Store interface {
	UpdateAgents(agents map[int]AgentProcess)
}
