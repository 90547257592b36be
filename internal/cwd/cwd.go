package cwd

import (
	"context"
	"strings"
	"time"

	"github.com/loykin/agentwatch/internal/runner"
)

// DefaultTTL is how long a resolved (or failed) lookup is reused.
const DefaultTTL = 10 * time.Second

type entry struct {
	at    time.Time
	value string
	ok    bool
}

// Stats counts lookups since the resolver was created.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Failures uint64
}

// Resolver looks up working directories through a Runner and caches the
// answer per pid, including failures, for a fixed TTL. It is owned by one
// scanner and is not safe for concurrent use.
type Resolver struct {
	runner  runner.Runner
	ttl     time.Duration
	enabled bool
	cache   map[int]entry
	stats   Stats
}

func NewResolver(r runner.Runner, ttl time.Duration, enabled bool) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{runner: r, ttl: ttl, enabled: enabled, cache: make(map[int]entry)}
}

func (r *Resolver) Enabled() bool { return r.enabled }

// SetEnabled toggles resolution. Disabling drops the cache.
func (r *Resolver) SetEnabled(on bool) {
	r.enabled = on
	if !on {
		r.cache = make(map[int]entry)
	}
}

// Resolve returns the cwd of pid. The boolean is false when resolution is
// disabled or the lookup failed.
func (r *Resolver) Resolve(ctx context.Context, pid int, now time.Time) (string, bool) {
	if !r.enabled || r.runner == nil {
		return "", false
	}
	if e, ok := r.cache[pid]; ok && now.Sub(e.at) < r.ttl {
		r.stats.Hits++
		return e.value, e.ok
	}
	r.stats.Misses++
	out, err := r.runner.OpenFiles(ctx, pid)
	if err != nil && ctx.Err() != nil {
		// interrupted, not a failed lookup: leave the next tick to retry
		return "", false
	}
	var dir string
	var ok bool
	if err == nil {
		dir, ok = ParseCwd(out)
	}
	if !ok {
		r.stats.Failures++
	}
	r.cache[pid] = entry{at: now, value: dir, ok: ok}
	return dir, ok
}

// Prune drops entries for pids not present in alive.
func (r *Resolver) Prune(alive map[int]struct{}) int {
	removed := 0
	for pid := range r.cache {
		if _, ok := alive[pid]; !ok {
			delete(r.cache, pid)
			removed++
		}
	}
	return removed
}

func (r *Resolver) Len() int { return len(r.cache) }

func (r *Resolver) Stats() Stats { return r.stats }

// ParseCwd extracts the working directory from lsof -F field output.
// It returns the first name ("n") entry that belongs to the cwd descriptor,
// or the first name entry when no descriptor ("f") line precedes it.
func ParseCwd(out string) (string, bool) {
	fd := ""
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 2 {
			continue
		}
		switch line[0] {
		case 'p':
			fd = ""
		case 'f':
			fd = line[1:]
		case 'n':
			if fd == "" || fd == "cwd" {
				return line[1:], true
			}
		}
	}
	return "", false
}
