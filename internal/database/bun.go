package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/fx"

	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

// NewBunDB puts bun on top of the pgx pool. Queries are always timed;
// DB_QUERY_DEBUG additionally logs every statement.
func NewBunDB(lc fx.Lifecycle, pool *pgxpool.Pool, cfg *config.Config, log *slog.Logger) *bun.DB {
	db := bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New())
	db.AddQueryHook(&queryHook{
		log:   log.With(logger.Scope("sql")),
		slow:  cfg.Database.SlowQuery,
		debug: cfg.Database.QueryDebug,
	})

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
	return db
}

// queryHook logs failed and slow queries. sql.ErrNoRows is a normal
// outcome for lookups and is not logged.
type queryHook struct {
	log   *slog.Logger
	slow  time.Duration
	debug bool
}

func (h *queryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	attrs := []any{
		slog.String("op", event.Operation()),
		slog.Duration("elapsed", elapsed),
	}

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.log.Error("query failed", append(attrs, slog.String("query", event.Query), logger.Error(event.Err))...)
	case h.slow > 0 && elapsed > h.slow:
		h.log.Warn("slow query", append(attrs, slog.String("query", event.Query))...)
	case h.debug:
		h.log.Debug("query", append(attrs, slog.String("query", event.Query))...)
	}
}
