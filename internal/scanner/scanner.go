package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/agentwatch/internal/cwd"
	"github.com/loykin/agentwatch/internal/detector"
	"github.com/loykin/agentwatch/internal/heuristic"
	"github.com/loykin/agentwatch/internal/metrics"
	"github.com/loykin/agentwatch/internal/proctable"
	"github.com/loykin/agentwatch/internal/repo"
	"github.com/loykin/agentwatch/internal/runner"
	"github.com/loykin/agentwatch/internal/sandbox"
)

// ErrNoStore is returned by New when Options.Store is nil.
var ErrNoStore = errors.New("scanner requires a store")

// DefaultRefresh is the poll interval used when Options.Refresh is zero.
const DefaultRefresh = 2 * time.Second

// Options configures a Scanner. Zero values pick defaults.
type Options struct {
	Runner     runner.Runner
	Schemas    []proctable.Schema
	Matchers   []detector.Matcher
	Heuristic  heuristic.Config
	CwdEnabled bool
	CwdTTL     time.Duration
	Refresh    time.Duration
	Repos      repo.Source
	Store      Store
	Now        func() time.Time
	Logger     *slog.Logger
}

// Scanner runs the detection pipeline and owns every per-pid cache.
type Scanner struct {
	lister   *proctable.Lister
	detector *detector.Detector
	tracker  *heuristic.Tracker
	cwd      *cwd.Resolver
	repos    repo.Source
	store    Store
	now      func() time.Time
	log      *slog.Logger

	refresh atomic.Int64
	paused  atomic.Bool

	// tickMu serializes ticks and guards the pipeline state above.
	tickMu    sync.Mutex
	lastStats cwd.Stats

	// mu guards the lifecycle and the store push.
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	lastTick time.Time
}

func New(opts Options) (*Scanner, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	r := opts.Runner
	if r == nil {
		r = runner.Exec{}
	}
	ms := opts.Matchers
	if len(ms) == 0 {
		ms = detector.DefaultMatchers()
	}
	if err := detector.ValidateMatchers(ms); err != nil {
		return nil, err
	}
	hc := opts.Heuristic
	if hc == (heuristic.Config{}) {
		hc = heuristic.DefaultConfig()
	}
	repos := opts.Repos
	if repos == nil {
		repos = repo.Static(nil)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	s := &Scanner{
		lister:   proctable.NewLister(r, opts.Schemas),
		detector: detector.New(ms),
		tracker:  heuristic.NewTracker(hc),
		cwd:      cwd.NewResolver(r, opts.CwdTTL, opts.CwdEnabled),
		repos:    repos,
		store:    opts.Store,
		now:      now,
		log:      lg.With("component", "scanner"),
	}
	s.SetRefresh(opts.Refresh)
	return s, nil
}

// Tick runs the pipeline once and pushes the result to the store. The push
// is skipped when ctx is already done, so a tick interrupted by Stop never
// publishes.
func (s *Scanner) Tick(ctx context.Context) (map[int]AgentProcess, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	agents, err := s.run(ctx)
	metrics.ObserveTickDuration(time.Since(start).Seconds())
	if err != nil {
		metrics.IncTick("error")
		return nil, err
	}
	metrics.IncTick("ok")
	return agents, nil
}

func (s *Scanner) run(ctx context.Context) (map[int]AgentProcess, error) {
	roots := s.repos.Roots()

	listing := s.lister.List(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tick interrupted: %w", err)
	}
	if listing.Schema == "" {
		metrics.IncEnumerationFailure()
		s.log.Warn("Process enumeration failed", "error", errors.Join(listing.Failures...))
	}
	metrics.SetSchema(listing.Schema)

	now := s.now()
	alive := make(map[int]struct{}, len(listing.Processes))
	var matches []detector.Match
	for _, p := range listing.Processes {
		alive[p.PID] = struct{}{}
		if label, ok := s.detector.Match(p); ok {
			matches = append(matches, detector.Match{Process: p, Label: label})
		}
	}
	survivors := detector.Dedup(matches)
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Process.PID < survivors[j].Process.PID
	})

	agents := make(map[int]AgentProcess, len(survivors))
	for _, m := range survivors {
		agents[m.Process.PID] = s.assemble(ctx, m, roots, now)
	}

	if err := s.publish(ctx, agents); err != nil {
		return nil, err
	}

	hp := s.tracker.Prune(alive)
	cp := s.cwd.Prune(alive)
	s.record(agents)
	s.log.Debug("Tick complete",
		"schema", listing.Schema,
		"processes", len(listing.Processes),
		"matched", len(matches),
		"agents", len(agents),
		"pruned", hp+cp)
	return agents, nil
}

func (s *Scanner) assemble(ctx context.Context, m detector.Match, roots []string, now time.Time) AgentProcess {
	p := m.Process
	ap := AgentProcess{
		PID:        p.PID,
		Label:      m.Label,
		Cmdline:    p.Cmdline,
		Exe:        p.Exe,
		StartedAt:  now.Add(-time.Duration(p.ElapsedSeconds) * time.Second),
		CPUPercent: p.CPUPercent,
		RSSKB:      p.RSSKB,
		Threads:    p.Threads,
		TTY:        p.TTY,
		Heuristic:  s.tracker.Observe(p.PID, p.CPUPercent, p.ElapsedSeconds, now),
	}
	if dir, ok := s.cwd.Resolve(ctx, p.PID, now); ok {
		ap.Cwd = dir
		if root, ok := repo.Correlate(dir, roots); ok {
			ap.Repo = root
		}
	}
	sb := sandbox.Classify(p.Cmdline, m.Label)
	ap.Sandboxed = sb.Sandboxed
	ap.SandboxType = sb.Type
	return ap
}

// publish hands the snapshot to the store without holding s.mu, so the store
// may call back into LastTick, Running or Pause. tickMu still serializes
// pushes, and Stop returns only after an in-flight push has finished.
func (s *Scanner) publish(ctx context.Context, agents map[int]AgentProcess) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("tick interrupted: %w", err)
	}
	s.store.UpdateAgents(agents)
	s.mu.Lock()
	s.lastTick = s.now()
	s.mu.Unlock()
	return nil
}

func (s *Scanner) record(agents map[int]AgentProcess) {
	counts := make(map[[2]string]int)
	for _, a := range agents {
		counts[[2]string{a.Label, string(a.Heuristic.State)}]++
	}
	metrics.SetAgents(counts)

	st := s.cwd.Stats()
	metrics.AddCwdLookups(st.Hits-s.lastStats.Hits, st.Misses-s.lastStats.Misses, st.Failures-s.lastStats.Failures)
	s.lastStats = st
	metrics.SetCachedPIDs("heuristic", s.tracker.Len())
	metrics.SetCachedPIDs("cwd", s.cwd.Len())
}

// Start launches the polling loop. It is a no-op while already running.
// Each iteration ticks and then waits the refresh interval, so ticks never
// overlap.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningLocked() {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(runCtx, s.done)
	s.log.Info("Scanner started", "refresh", s.Refresh())
}

func (s *Scanner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if s.paused.Load() {
			metrics.IncTick("paused")
		} else if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("Tick failed", "error", err)
		}
		timer.Reset(s.Refresh())
	}
}

// Stop cancels the loop and waits for it to exit. Safe to call repeatedly
// and from any goroutine.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	if cancel != nil {
		cancel()
	}
	s.mu.Unlock()
	if done != nil {
		<-done
		s.log.Info("Scanner stopped")
	}
}

func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Scanner) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Pause makes loop iterations skip the pipeline; the timer keeps running.
func (s *Scanner) Pause() {
	if !s.paused.Swap(true) {
		s.log.Info("Scanner paused")
	}
}

func (s *Scanner) Resume() {
	if s.paused.Swap(false) {
		s.log.Info("Scanner resumed")
	}
}

func (s *Scanner) Paused() bool { return s.paused.Load() }

// LastTick returns when the store was last updated; zero before the first tick.
func (s *Scanner) LastTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

func (s *Scanner) Refresh() time.Duration { return time.Duration(s.refresh.Load()) }

// SetRefresh changes the poll interval from the next wait on.
func (s *Scanner) SetRefresh(d time.Duration) {
	if d <= 0 {
		d = DefaultRefresh
	}
	s.refresh.Store(int64(d))
}

// Reconfigure swaps matchers, thresholds and cwd resolution between ticks.
// The regex cache and activity timestamps are kept.
func (s *Scanner) Reconfigure(ms []detector.Matcher, hc heuristic.Config, cwdEnabled bool) error {
	if err := detector.ValidateMatchers(ms); err != nil {
		return err
	}
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.detector.SetMatchers(ms)
	s.tracker.SetConfig(hc)
	s.cwd.SetEnabled(cwdEnabled)
	return nil
}

// Matchers returns the matchers currently in effect.
func (s *Scanner) Matchers() []detector.Matcher {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.detector.Matchers()
}

// CacheSizes reports how many pids each cache holds.
func (s *Scanner) CacheSizes() (heuristicPIDs, cwdPIDs int) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.tracker.Len(), s.cwd.Len()
}
