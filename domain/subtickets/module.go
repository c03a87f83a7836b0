package subtickets

import (
	"go.uber.org/fx"

	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
)

// Module provides the subtickets API
var Module = fx.Module("subtickets",
	fx.Provide(NewCreator),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// NewCreator binds the ticket repository as the host ticket creator.
func NewCreator(repo *tickets.Repository) Creator {
	return repo
}
