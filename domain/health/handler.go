package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/internal/version"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/session"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	probeTimeout = 5 * time.Second
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the probe and debug endpoints.
type Handler struct {
	db      Pinger
	deps    map[string]Pinger
	cfg     *config.Config
	started time.Time
}

// NewHandler always probes the database. The session store joins the
// health report only when it is a networked store that answers pings.
func NewHandler(db Pinger, store session.Store, cfg *config.Config) *Handler {
	deps := map[string]Pinger{"database": db}
	if p, ok := store.(Pinger); ok {
		deps["sessions"] = p
	}
	return &Handler{db: db, deps: deps, cfg: cfg, started: time.Now()}
}

type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health pings every dependency and answers 503 if any of them fails.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   version.String(),
		Checks:    make(map[string]Check, len(h.deps)),
	}
	for name, dep := range h.deps {
		chk := Check{Status: statusHealthy}
		if err := dep.Ping(ctx); err != nil {
			chk = Check{Status: statusUnhealthy, Message: err.Error()}
			resp.Status = statusUnhealthy
		}
		resp.Checks[name] = chk
	}

	if resp.Status != statusHealthy {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready is the readiness probe; only the database gates traffic.
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":  "not_ready",
			"message": "database unreachable",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
}

// Debug dumps runtime and hierarchy settings. It does not exist in
// production.
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.Environment == "production" {
		return echo.ErrNotFound
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return c.JSON(http.StatusOK, echo.Map{
		"version":         version.String(),
		"build_time":      version.BuildTime,
		"environment":     h.cfg.Environment,
		"debug":           h.cfg.Debug,
		"go_version":      runtime.Version(),
		"goroutines":      runtime.NumGoroutine(),
		"heap_alloc_mb":   mem.HeapAlloc >> 20,
		"sys_mb":          mem.Sys >> 20,
		"num_gc":          mem.NumGC,
		"session_backend": h.cfg.Session.Backend,
		"tracing":         h.cfg.Otel.Enabled(),
		"hierarchy": echo.Map{
			"walk_limit":   h.cfg.Hierarchy.WalkLimit,
			"max_depth":    h.cfg.Hierarchy.MaxDepth,
			"max_children": h.cfg.Hierarchy.MaxChildren,
		},
	})
}
