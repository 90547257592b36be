package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentwatch",
			Subsystem: "scan",
			Name:      "ticks_total",
			Help:      "Number of scan ticks by outcome (ok, error, paused).",
		}, []string{"result"},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentwatch",
			Subsystem: "scan",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one scan pipeline run.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
	enumerationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentwatch",
			Subsystem: "scan",
			Name:      "enumeration_failures_total",
			Help:      "Ticks where every process listing schema failed.",
		},
	)
	schemaInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentwatch",
			Subsystem: "scan",
			Name:      "schema",
			Help:      "Process listing schema accepted on the last tick (1 = in use).",
		}, []string{"schema"},
	)
	agents = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentwatch",
			Subsystem: "agents",
			Name:      "current",
			Help:      "Detected agent processes by label and heuristic state.",
		}, []string{"label", "state"},
	)
	cwdLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentwatch",
			Subsystem: "cwd",
			Name:      "lookups_total",
			Help:      "Working directory lookups by result (hit, miss, failure).",
		}, []string{"result"},
	)
	cachedPIDs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentwatch",
			Subsystem: "cache",
			Name:      "pids",
			Help:      "Pids currently held per scanner cache.",
		}, []string{"cache"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{ticks, tickDuration, enumerationFailures, schemaInUse, agents, cwdLookups, cachedPIDs}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by the scanner to record metrics.
// They no-op if Register hasn't been called.

func IncTick(result string) {
	if regOK.Load() {
		ticks.WithLabelValues(result).Inc()
	}
}

func ObserveTickDuration(seconds float64) {
	if regOK.Load() {
		tickDuration.Observe(seconds)
	}
}

func IncEnumerationFailure() {
	if regOK.Load() {
		enumerationFailures.Inc()
	}
}

func SetSchema(name string) {
	if regOK.Load() {
		schemaInUse.Reset()
		if name != "" {
			schemaInUse.WithLabelValues(name).Set(1)
		}
	}
}

// SetAgents replaces the agent gauge with counts keyed by label and state.
func SetAgents(counts map[[2]string]int) {
	if regOK.Load() {
		agents.Reset()
		for k, n := range counts {
			agents.WithLabelValues(k[0], k[1]).Set(float64(n))
		}
	}
}

func AddCwdLookups(hits, misses, failures uint64) {
	if regOK.Load() {
		cwdLookups.WithLabelValues("hit").Add(float64(hits))
		cwdLookups.WithLabelValues("miss").Add(float64(misses))
		cwdLookups.WithLabelValues("failure").Add(float64(failures))
	}
}

func SetCachedPIDs(cache string, n int) {
	if regOK.Load() {
		cachedPIDs.WithLabelValues(cache).Set(float64(n))
	}
}
