// Package database opens the Postgres pool the ticket table lives in and
// exposes it to the rest of the app as bun.IDB.
package database

import (
	"github.com/uptrace/bun"
	"go.uber.org/fx"
)

var Module = fx.Module("database",
	fx.Provide(
		NewPgxPool,
		NewBunDB,
		func(db *bun.DB) bun.IDB { return db },
	),
)
