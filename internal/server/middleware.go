package server

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/auth"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

// IsProbePath reports whether the request targets a liveness, readiness or
// metrics endpoint. Those are neither logged nor traced.
func IsProbePath(c echo.Context) bool {
	switch c.Request().URL.Path {
	case "/health", "/healthz", "/ready", "/metrics":
		return true
	}
	return false
}

// clientIP decides where c.RealIP() reads the client address from.
// X-Forwarded-For is honoured only when the peer is a configured proxy;
// without proxies the socket peer is the client.
func clientIP(cfg *config.Config, log *slog.Logger) echo.IPExtractor {
	ranges, err := cfg.TrustedProxyRanges()
	if err != nil {
		log.Warn("ignoring trusted proxies", logger.Error(err))
		ranges = nil
	}
	if len(ranges) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, r := range ranges {
		opts = append(opts, echo.TrustIPRange(r))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// requestLogger writes one line per request. The staff id is added when the
// auth middleware identified the caller further down the chain.
func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:      IsProbePath,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
				slog.String("remote_ip", v.RemoteIP),
			}
			if actor := auth.GetActor(c); actor != nil {
				attrs = append(attrs, slog.Int64("staff_id", actor.StaffID))
			}

			switch {
			case v.Error != nil && v.Status >= 500:
				log.Error("request failed", append(attrs, logger.Error(v.Error))...)
			case v.Error != nil:
				log.Info("request rejected", append(attrs, logger.Error(v.Error))...)
			default:
				log.Info("request", attrs...)
			}
			return nil
		},
	})
}

// recoverer turns a handler panic into a 500 envelope and logs the stack.
func recoverer(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error("panic recovered",
				slog.String("uri", c.Request().RequestURI),
				logger.Error(err),
				slog.String("stack", string(stack)),
			)
			return err
		},
	})
}
