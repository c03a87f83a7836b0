// Package gate rejects unsafe or unauthorized requests before they reach the
// hierarchy service. Checks run cheapest first: rate limit, then CSRF for
// mutations, then authentication, then access to the named ticket.
package gate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/auth"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

// Rejection reasons, also the metric label values.
const (
	ReasonThrottled    = "throttled"
	ReasonRateLimited  = "rate_limited"
	ReasonCSRFMissing  = "csrf_missing"
	ReasonCSRFInvalid  = "csrf_invalid"
	ReasonUnauthorized = "unauthorized"
	ReasonForbidden    = "forbidden"
	ReasonNotFound     = "not_found"
)

// TicketReader loads the ticket named by a request.
type TicketReader interface {
	GetByID(ctx context.Context, id int64) (*tickets.Ticket, error)
}

// Request describes what a handler is about to do.
type Request struct {
	// Mutating requests must carry a CSRF token
	Mutating  bool
	CSRFToken string

	// Ticket the operation names
	TicketID int64
}

// Grant is the outcome of a passed check.
type Grant struct {
	Actor  *auth.Actor
	Ticket *tickets.Ticket
}

// Gate runs the request checks.
type Gate struct {
	limiter  *RateLimiter
	throttle *Throttle
	csrf     *CSRF
	tickets  TicketReader
	log      *slog.Logger
}

// NewGate creates a gate. throttle may be nil to disable per-IP throttling.
func NewGate(limiter *RateLimiter, throttle *Throttle, csrf *CSRF, tickets TicketReader, log *slog.Logger) *Gate {
	return &Gate{
		limiter:  limiter,
		throttle: throttle,
		csrf:     csrf,
		tickets:  tickets,
		log:      log.With(logger.Scope("gate")),
	}
}

// CSRF returns the token issuer.
func (g *Gate) CSRF() *CSRF {
	return g.csrf
}

// Throttle returns middleware applying the per-IP token bucket.
func (g *Gate) Throttle() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if g.throttle == nil || g.throttle.Allow(c.RealIP()) {
				return next(c)
			}
			reject(ReasonThrottled)
			return apperror.ErrRateLimited.WithDetails(map[string]any{"retryAfter": 1})
		}
	}
}

// RateLimit returns middleware applying the per-session sliding window.
// It must run after auth.Middleware.Identify so the session is known;
// anonymous callers share a window per client IP.
func (g *Gate) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := RateLimitKey(c)
			d, err := g.limiter.Check(c.Request().Context(), key)
			if err != nil {
				g.log.Error("rate limit check failed", logger.Error(err))
				return apperror.ErrInternal.WithInternal(err)
			}
			if !d.Allowed {
				reject(ReasonRateLimited)
				g.log.Warn("rate limited",
					slog.String("key", key),
					slog.Duration("retry_after", d.RetryAfter),
				)
				return apperror.ErrRateLimited.WithDetails(map[string]any{
					"retryAfter": d.RetryAfterSeconds(),
				})
			}
			return next(c)
		}
	}
}

// RateLimitKey is the session id, or anon:<ip> for callers without one.
func RateLimitKey(c echo.Context) string {
	if sid := auth.SessionID(c); sid != "" {
		return sid
	}
	return "anon:" + c.RealIP()
}

// Authorize runs CSRF (for mutations), authentication and, when the request
// names a ticket, the access check on it.
func (g *Gate) Authorize(c echo.Context, req Request) (*Grant, error) {
	ctx := c.Request().Context()

	if req.Mutating {
		if err := g.csrf.Verify(ctx, auth.SessionID(c), req.CSRFToken); err != nil {
			switch {
			case errors.Is(err, apperror.ErrCSRFMissing):
				reject(ReasonCSRFMissing)
			case errors.Is(err, apperror.ErrCSRFInvalid):
				reject(ReasonCSRFInvalid)
			}
			return nil, err
		}
	}

	actor, err := auth.RequireStaff(c)
	if err != nil {
		reject(ReasonUnauthorized)
		return nil, err
	}

	grant := &Grant{Actor: actor}
	if req.TicketID <= 0 {
		return grant, nil
	}

	t, err := g.tickets.GetByID(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	if !g.allowed(actor, t, req.TicketID) {
		return nil, apperror.ErrNotFound.WithMessage("Ticket not found")
	}

	grant.Ticket = t
	return grant, nil
}

// Reachable reports whether actor may see ticket id. A missing ticket and
// one outside the actor's departments both answer false.
func (g *Gate) Reachable(ctx context.Context, actor *auth.Actor, id int64) (bool, error) {
	t, err := g.tickets.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return g.allowed(actor, t, id), nil
}

// allowed records why access was refused. Callers answer both cases with
// the same not-found error so ids outside the actor's reach stay unknown.
func (g *Gate) allowed(actor *auth.Actor, t *tickets.Ticket, id int64) bool {
	if t == nil {
		reject(ReasonNotFound)
		return false
	}
	if !CanAccess(actor, t) {
		reject(ReasonForbidden)
		var staffID int64
		if actor != nil {
			staffID = actor.StaffID
		}
		g.log.Warn("ticket access denied",
			slog.Int64("staff_id", staffID),
			slog.Int64("ticket_id", id),
			slog.Int64("department_id", t.DepartmentID),
		)
		return false
	}
	return true
}
