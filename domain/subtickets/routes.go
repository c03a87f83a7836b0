package subtickets

import (
	"github.com/labstack/echo/v4"

	"github.com/markus-michalski/osticket-subticket-manager/domain/gate"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/auth"
)

// RegisterRoutes registers subticket routes. Every route is throttled per
// IP, identified, then rate limited per session before the handler runs.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware, g *gate.Gate) {
	grp := e.Group("/api/subtickets",
		g.Throttle(),
		authMiddleware.Identify(),
		g.RateLimit(),
	)

	// Session CSRF token
	grp.GET("/csrf", h.CSRFToken)

	// Reads
	grp.GET("/:ticketId/children", h.GetChildren)
	grp.GET("/:ticketId/parent", h.GetParent)

	// Mutations
	grp.POST("/:childId/unlink", h.Unlink)
	grp.POST("/:childId/link", h.Link)
	grp.POST("/:parentId/subtickets", h.Create)
}
