// Package server builds the Echo instance the API routes hang off and runs
// it for the lifetime of the fx app.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

var Module = fx.Module("server",
	fx.Provide(NewEcho),
	fx.Invoke(StartServer),
)

// EchoParams are the dependencies for creating an Echo instance
type EchoParams struct {
	fx.In

	Config *config.Config
	Log    *slog.Logger
}

// NewEcho creates the Echo instance. Errors leaving a handler become
// failure envelopes; the host UI calls from another origin with credentials.
func NewEcho(p EchoParams) *echo.Echo {
	cfg := p.Config
	log := p.Log.With(logger.Scope("http"))

	e := echo.New()
	e.Debug = cfg.Debug
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)
	e.IPExtractor = clientIP(cfg, log)

	e.Pre(middleware.RemoveTrailingSlash())

	e.Use(
		middleware.RequestID(),
		requestLogger(log),
		recoverer(log),
		middleware.CORSWithConfig(middleware.CORSConfig{
			// echo the caller's origin; a wildcard is not allowed with credentials
			AllowOriginFunc:  func(string) (bool, error) { return true, nil },
			AllowCredentials: true,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{
				echo.HeaderOrigin,
				echo.HeaderContentType,
				echo.HeaderAccept,
				echo.HeaderAuthorization,
				"X-CSRF-Token",
			},
			ExposeHeaders: []string{echo.HeaderRetryAfter, echo.HeaderXRequestID},
		}),
	)

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Skipper: IsProbePath,
			Timeout: cfg.RequestTimeout,
		}))
	}

	return e
}

// StartServer serves e between fx start and stop.
func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, log *slog.Logger) {
	log = log.With(logger.Scope("server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerAddress, cfg.ServerPort),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("listening", slog.String("addr", srv.Addr), slog.String("environment", cfg.Environment))
			go func() {
				if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped unexpectedly", logger.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			log.Info("draining connections", slog.Duration("timeout", cfg.ShutdownTimeout))
			return e.Shutdown(ctx)
		},
	})
}
