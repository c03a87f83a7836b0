package hierarchy

import (
	"go.uber.org/fx"

	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
)

var Module = fx.Module("hierarchy",
	fx.Provide(
		NewLimits,
		NewStore,
		NewService,
	),
)

// NewLimits reads the hierarchy limits from config.
func NewLimits(cfg *config.Config) Limits {
	return Limits{
		WalkLimit:   cfg.Hierarchy.WalkLimit,
		MaxDepth:    cfg.Hierarchy.MaxDepth,
		MaxChildren: cfg.Hierarchy.MaxChildren,
	}
}

// NewStore binds the ticket repository as the relation store.
func NewStore(repo *tickets.Repository) Store {
	return repo
}
