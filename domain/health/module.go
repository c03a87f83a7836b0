package health

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
)

var Module = fx.Module("health",
	fx.Provide(
		NewPoolPinger,
		NewHandler,
		NewMetricsHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// NewPoolPinger exposes the pgx pool as the database check.
func NewPoolPinger(pool *pgxpool.Pool) Pinger {
	return pool
}
