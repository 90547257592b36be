package heuristic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func cfg() Config { return Config{ActiveCPUPercent: 2, StalledSeconds: 60} }

func TestWorkingResetsQuiet(t *testing.T) {
	tr := NewTracker(cfg())
	tr.Observe(1, 0, 3600, t0)
	r := tr.Observe(1, 0.1, 3600, t0.Add(10*time.Minute))
	assert.Equal(t, StateStalled, r.State)

	r = tr.Observe(1, 2, 3600, t0.Add(11*time.Minute))
	assert.Equal(t, StateWorking, r.State)
	assert.Equal(t, 0.0, r.QuietSeconds)

	r = tr.Observe(1, 0, 3600, t0.Add(11*time.Minute+30*time.Second))
	assert.Equal(t, StateWaiting, r.State)
	assert.InDelta(t, 30, r.QuietSeconds, 1e-9)
}

func TestFirstSightingGetsGrace(t *testing.T) {
	tr := NewTracker(cfg())
	// started 3s ago: lastActiveAt lands 2s in the future, quiet clamps to 0
	r := tr.Observe(7, 0, 3, t0)
	assert.Equal(t, StateWaiting, r.State)
	assert.Equal(t, 0.0, r.QuietSeconds)

	// long-running idle process: quiet = elapsed - grace
	r = tr.Observe(8, 0, 100, t0)
	assert.InDelta(t, 95, r.QuietSeconds, 1e-9)
	assert.Equal(t, StateStalled, r.State)
}

func TestQuietGrowsOnlyWhileIdle(t *testing.T) {
	tr := NewTracker(cfg())
	tr.Observe(1, 5, 20, t0)
	prev := 0.0
	for i := 1; i <= 5; i++ {
		r := tr.Observe(1, 0.5, 20+int64(i*2), t0.Add(time.Duration(i*2)*time.Second))
		assert.Greater(t, r.QuietSeconds, prev)
		prev = r.QuietSeconds
	}
}

func TestYoungProcessNeverStalls(t *testing.T) {
	tr := NewTracker(Config{ActiveCPUPercent: 50, StalledSeconds: 0})
	for _, elapsed := range []int64{0, 1, 5, 10} {
		tr.Observe(int(elapsed)+100, 0, elapsed, t0)
		tr.lastActiveAt[int(elapsed)+100] = t0.Add(-time.Hour)
		r := tr.Observe(int(elapsed)+100, 0, elapsed, t0)
		assert.NotEqual(t, StateStalled, r.State, "elapsed=%d", elapsed)
		assert.Greater(t, r.QuietSeconds, 0.0)
	}
	r := tr.Observe(500, 0, 11, t0)
	assert.Equal(t, StateStalled, r.State)
}

func TestStalledRequiresQuietBeyondThreshold(t *testing.T) {
	tr := NewTracker(cfg())
	tr.Observe(1, 5, 600, t0)

	r := tr.Observe(1, 0, 660, t0.Add(60*time.Second))
	assert.Equal(t, 60.0, r.QuietSeconds)
	assert.Equal(t, StateWaiting, r.State, "quiet equal to the threshold is still waiting")

	r = tr.Observe(1, 0, 661, t0.Add(61*time.Second))
	assert.Equal(t, StateStalled, r.State)
}

func TestThresholdIsInclusive(t *testing.T) {
	tr := NewTracker(cfg())
	assert.Equal(t, StateWorking, tr.Observe(1, 2.0, 100, t0).State)
	assert.Equal(t, StateWaiting, tr.Observe(2, 1.99, 1, t0).State)
}

func TestPruneRestartsGrace(t *testing.T) {
	tr := NewTracker(cfg())
	tr.Observe(1, 0, 1000, t0)
	tr.Observe(2, 0, 1000, t0)
	assert.Equal(t, 2, tr.Len())

	removed := tr.Prune(map[int]struct{}{2: {}})
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tr.Len())

	// pid 1 is reused by a brand-new process
	r := tr.Observe(1, 0, 2, t0.Add(time.Hour))
	assert.Equal(t, StateWaiting, r.State)
	assert.Equal(t, 0.0, r.QuietSeconds)
}

func TestSetConfigKeepsTimestamps(t *testing.T) {
	tr := NewTracker(cfg())
	tr.Observe(1, 10, 100, t0)
	tr.SetConfig(Config{ActiveCPUPercent: 20, StalledSeconds: 5})
	r := tr.Observe(1, 10, 110, t0.Add(10*time.Second))
	assert.Equal(t, StateStalled, r.State)
	assert.InDelta(t, 10, r.QuietSeconds, 1e-9)
	assert.Equal(t, 20.0, tr.Config().ActiveCPUPercent)
}
