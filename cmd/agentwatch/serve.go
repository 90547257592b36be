package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/agentwatch"
	"github.com/loykin/agentwatch/internal/config"
	"github.com/prometheus/client_golang/prometheus"
)

// Serve runs the scanner until ctx is done or a termination signal arrives.
func (c *command) Serve(ctx context.Context, g GlobalFlags, f ServeFlags) error {
	cfg, err := c.loadConfig(g)
	if err != nil {
		return err
	}

	if f.WatchConfig && g.ConfigPath == "" {
		return fmt.Errorf("--watch-config requires --config")
	}

	if f.Daemonize {
		return daemonize(f.PidFile, f.LogFile)
	}
	if f.PidFile != "" {
		if err := writePidFile(f.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(f.PidFile) }()
	}

	lg := setupLogging(cfg.Log, f.LogFile)

	st := agentwatch.NewMemoryStore(lg)
	sc, err := agentwatch.NewScannerFromConfig(cfg, st, c.runner, lg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Metrics.Enabled {
		if err := agentwatch.RegisterMetricsDefault(); err != nil {
			lg.Warn("Failed to register metrics", "error", err)
		}
		self := agentwatch.NewSelfCollector(agentwatch.SelfMetricsConfig{Enabled: true, Interval: cfg.Metrics.SelfInterval})
		if err := self.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			lg.Warn("Failed to register self metrics", "error", err)
		} else if err := self.Start(ctx); err != nil {
			lg.Warn("Failed to start self metrics", "error", err)
		} else {
			defer self.Stop()
		}
	}

	servers, err := startOpsServers(cfg, sc, st)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer scancel()
		for _, s := range servers {
			if err := s.Shutdown(sctx); err != nil {
				_ = s.Close()
			}
		}
	}()

	if f.WatchConfig {
		if _, err := config.Watch(g.ConfigPath, func(next *config.Config) {
			if err := agentwatch.Reconfigure(sc, next); err != nil {
				lg.Warn("Failed to apply reloaded config", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
	}

	sc.Start(ctx)
	defer sc.Stop()
	lg.Info("Watching agents", "refresh", sc.Refresh(), "matchers", len(sc.Matchers()), "version", version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	ctlCh := make(chan os.Signal, 1)
	notifyControl(ctlCh)
	defer signal.Stop(ctlCh)

	for {
		select {
		case <-ctx.Done():
			lg.Info("Shutting down")
			return nil
		case s := <-sigCh:
			lg.Info("Shutting down", "signal", s.String())
			return nil
		case s := <-ctlCh:
			switch controlAction(s) {
			case actionPause:
				sc.Pause()
			case actionResume:
				sc.Resume()
			}
		}
	}
}

// startOpsServers serves health on server.listen and, when metrics are
// enabled on a different address, a second listener for scrapers.
func startOpsServers(cfg *agentwatch.Config, sc *agentwatch.Scanner, st *agentwatch.MemoryStore) ([]*http.Server, error) {
	var out []*http.Server
	if cfg.Server.Listen != "" {
		srv, err := agentwatch.NewOpsServer(cfg.Server.Listen, sc, st, cfg.Metrics.Enabled)
		if err != nil {
			return nil, fmt.Errorf("failed to start ops server: %w", err)
		}
		slog.Info("Ops server listening", "addr", describeListen(srv.Addr))
		out = append(out, srv)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" && cfg.Metrics.Listen != cfg.Server.Listen {
		srv, err := agentwatch.NewOpsServer(cfg.Metrics.Listen, sc, st, true)
		if err != nil {
			for _, s := range out {
				_ = s.Close()
			}
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		slog.Info("Metrics listening", "addr", describeListen(srv.Addr))
		out = append(out, srv)
	}
	return out, nil
}

type controlKind int

const (
	actionNone controlKind = iota
	actionPause
	actionResume
)

// shutdownGrace bounds how long Serve waits for in-flight requests.
const shutdownGrace = 2 * time.Second
