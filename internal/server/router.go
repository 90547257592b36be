package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/agentwatch/internal/metrics"
)

// Scanner is the part of the scanner the health check reads.
type Scanner interface {
	Running() bool
	Paused() bool
	LastTick() time.Time
	Refresh() time.Duration
}

// Counter reports how many agents the latest snapshot holds.
type Counter interface {
	Len() int
}

// StaleAfter is how many refresh intervals may pass without a tick before
// the watcher reports itself stale.
const StaleAfter = 3

// Router serves the ops endpoints:
//
//	GET {basePath}/healthz   scanner liveness as JSON
//	GET {basePath}/metrics   Prometheus exposition (when enabled)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	scanner  Scanner
	agents   Counter
	basePath string
	metrics  bool
	now      func() time.Time
}

func NewRouter(sc Scanner, agents Counter, basePath string, withMetrics bool) *Router {
	return &Router{scanner: sc, agents: agents, basePath: sanitizeBase(basePath), metrics: withMetrics, now: time.Now}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealth)
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer listens on addr and serves the router in the background.
func NewServer(addr string, r *Router) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Ops server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}

type healthResp struct {
	Status   string     `json:"status"`
	Running  bool       `json:"running"`
	Paused   bool       `json:"paused"`
	LastTick *time.Time `json:"last_tick,omitempty"`
	Agents   int        `json:"agents"`
}

func (r *Router) handleHealth(c *gin.Context) {
	resp := healthResp{
		Running: r.scanner.Running(),
		Paused:  r.scanner.Paused(),
	}
	if r.agents != nil {
		resp.Agents = r.agents.Len()
	}
	last := r.scanner.LastTick()
	if !last.IsZero() {
		resp.LastTick = &last
	}
	code := http.StatusOK
	switch {
	case !resp.Running:
		resp.Status = "stopped"
		code = http.StatusServiceUnavailable
	case resp.Paused:
		resp.Status = "paused"
	case !last.IsZero() && r.now().Sub(last) > StaleAfter*r.scanner.Refresh():
		resp.Status = "stale"
		code = http.StatusServiceUnavailable
	default:
		resp.Status = "ok"
	}
	writeJSON(c, code, resp)
}
