// Package main provides the entry point for the subticket API server
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/markus-michalski/osticket-subticket-manager/domain/gate"
	"github.com/markus-michalski/osticket-subticket-manager/domain/health"
	"github.com/markus-michalski/osticket-subticket-manager/domain/hierarchy"
	"github.com/markus-michalski/osticket-subticket-manager/domain/scheduler"
	"github.com/markus-michalski/osticket-subticket-manager/domain/subtickets"
	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
	"github.com/markus-michalski/osticket-subticket-manager/domain/tracing"
	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/internal/database"
	"github.com/markus-michalski/osticket-subticket-manager/internal/migrate"
	"github.com/markus-michalski/osticket-subticket-manager/internal/server"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/auth"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/session"
)

func main() {
	// .env.local overrides .env; Load never overwrites the real environment
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		migrate.Module,
		server.Module,
		tracing.Module,

		// Sessions back the rate limiter and CSRF tokens
		session.Module,
		auth.Module,

		// Domain modules
		health.Module,
		tickets.Module,
		hierarchy.Module,
		gate.Module,
		subtickets.Module,
		scheduler.Module,
	).Run()
}
