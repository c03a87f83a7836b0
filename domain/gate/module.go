package gate

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/session"
)

var Module = fx.Module("gate",
	fx.Provide(
		provideRateLimiter,
		provideThrottle,
		provideCSRF,
		provideTicketReader,
		NewGate,
	),
)

func provideRateLimiter(store session.Store, cfg *config.Config) *RateLimiter {
	return NewRateLimiter(store, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.Cooldown)
}

func provideThrottle(cfg *config.Config, log *slog.Logger) *Throttle {
	if !cfg.Throttle.Enabled() {
		log.Info("per-IP throttle disabled", logger.Scope("gate"))
		return nil
	}
	return NewThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst)
}

func provideCSRF(store session.Store, cfg *config.Config) *CSRF {
	return NewCSRF(store, cfg.Session.TTL)
}

func provideTicketReader(repo *tickets.Repository) TicketReader {
	return repo
}
