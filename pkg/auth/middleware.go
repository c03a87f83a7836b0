package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

// Middleware identifies the caller from a bearer token.
type Middleware struct {
	verifier *Verifier
	log      *slog.Logger
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(cfg *config.Config, log *slog.Logger) *Middleware {
	log = log.With(logger.Scope("auth"))
	if !cfg.Auth.IsConfigured() {
		log.Warn("AUTH_JWT_SECRET not set, every request will be anonymous")
	}
	return &Middleware{
		verifier: NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.Leeway),
		log:      log,
	}
}

// Identify attaches the actor to the context when a valid token is present.
// It never rejects: the rate limiter needs the session before the
// authentication check runs, so rejection happens in RequireStaff.
func (m *Middleware) Identify() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := m.extractToken(c.Request())
			if token == "" {
				return next(c)
			}

			actor, err := m.verifier.Verify(token)
			if err != nil {
				m.log.Debug("token rejected", logger.Error(err))
				c.Set(string(AuthErrorContextKey), err)
				return next(c)
			}

			c.Set(string(ActorContextKey), actor)
			return next(c)
		}
	}
}

// RequireStaff returns the identified actor when it is an agent.
func RequireStaff(c echo.Context) (*Actor, error) {
	actor := GetActor(c)
	if actor == nil {
		if err, ok := c.Get(string(AuthErrorContextKey)).(error); ok && err != nil {
			return nil, apperror.ErrInvalidToken.WithInternal(err)
		}
		return nil, apperror.ErrUnauthorized
	}
	if !actor.IsStaff() {
		return nil, apperror.ErrUnauthorized.WithMessage("Staff access required")
	}
	return actor, nil
}

// extractToken extracts the bearer token from request
func (m *Middleware) extractToken(r *http.Request) string {
	auth := r.Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
