package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// SelfMetrics is a point-in-time resource sample of the watcher process.
type SelfMetrics struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// SelfMetricsConfig holds configuration for self metrics collection.
type SelfMetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// SelfCollector samples the watcher's own CPU and memory so the cost of
// scanning stays visible.
type SelfCollector struct {
	enabled  bool
	interval time.Duration
	pid      int32
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu   sync.RWMutex
	last SelfMetrics

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

func NewSelfCollector(config SelfMetricsConfig) *SelfCollector {
	interval := config.Interval
	if interval == 0 {
		interval = 10 * time.Second // default
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "agentwatch",
				Subsystem: "self",
				Name:      name,
				Help:      help,
			}, []string{"pid"},
		)
	}
	return &SelfCollector{
		enabled:    config.Enabled,
		interval:   interval,
		pid:        int32(os.Getpid()),
		stopCh:     make(chan struct{}),
		cpuPercent: gauge("cpu_percent", "CPU usage percentage of the agentwatch process."),
		memoryMB:   gauge("memory_mb", "Resident memory in MB of the agentwatch process."),
		numThreads: gauge("num_threads", "Thread count of the agentwatch process."),
		numFDs:     gauge("num_fds", "Open file descriptors of the agentwatch process (Unix only)."),
	}
}

// RegisterMetrics registers the self metrics with the provided registerer
func (c *SelfCollector) RegisterMetrics(r prometheus.Registerer) error {
	if !c.enabled {
		return nil
	}
	collectors := []prometheus.Collector{c.cpuPercent, c.memoryMB, c.numThreads}
	if runtime.GOOS != "windows" {
		collectors = append(collectors, c.numFDs)
	}
	for _, collector := range collectors {
		if err := r.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start begins periodic sampling until ctx is done or Stop is called.
func (c *SelfCollector) Start(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	proc, err := process.NewProcessWithContext(ctx, c.pid)
	if err != nil {
		return fmt.Errorf("failed to create process handle: %w", err)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		c.collect(ctx, proc)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collect(ctx, proc)
			}
		}
	}()
	return nil
}

// Stop stops the collection
func (c *SelfCollector) Stop() {
	if !c.enabled {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// Last returns the most recent sample; the zero value before the first one.
func (c *SelfCollector) Last() SelfMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *SelfCollector) collect(ctx context.Context, proc *process.Process) {
	m, err := sample(ctx, proc)
	if err != nil {
		slog.Debug("Failed to collect self metrics", "pid", c.pid, "error", err)
		return
	}
	pid := fmt.Sprint(m.PID)
	c.cpuPercent.WithLabelValues(pid).Set(m.CPUPercent)
	c.memoryMB.WithLabelValues(pid).Set(m.MemoryMB)
	c.numThreads.WithLabelValues(pid).Set(float64(m.NumThreads))
	if runtime.GOOS != "windows" && m.NumFDs > 0 {
		c.numFDs.WithLabelValues(pid).Set(float64(m.NumFDs))
	}
	c.mu.Lock()
	c.last = m
	c.mu.Unlock()
}

func sample(ctx context.Context, proc *process.Process) (SelfMetrics, error) {
	cpuPercent, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		cpuPercent = 0
	}
	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return SelfMetrics{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	numThreads, err := proc.NumThreadsWithContext(ctx)
	if err != nil {
		numThreads = 0
	}
	m := SelfMetrics{
		PID:        proc.Pid,
		CPUPercent: cpuPercent,
		MemoryMB:   float64(memInfo.RSS) / 1024 / 1024,
		NumThreads: numThreads,
		Timestamp:  time.Now(),
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDsWithContext(ctx); err == nil {
			m.NumFDs = n
		}
	}
	return m, nil
}
