package health

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markus-michalski/osticket-subticket-manager/domain/gate"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/auth"
)

// RegisterRoutes mounts the probes at the root and the hierarchy report
// behind the same throttle, identity and rate limit as the API.
func RegisterRoutes(e *echo.Echo, h *Handler, m *MetricsHandler, authMiddleware *auth.Middleware, g *gate.Gate) {
	e.GET("/health", h.Health)
	e.GET("/healthz", h.Healthz)
	e.GET("/ready", h.Ready)
	e.GET("/debug", h.Debug)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api", g.Throttle(), authMiddleware.Identify(), g.RateLimit())
	api.GET("/health", h.Health)
	api.GET("/metrics/hierarchy", m.Hierarchy)
}
