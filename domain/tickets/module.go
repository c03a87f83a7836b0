package tickets

import (
	"go.uber.org/fx"
)

var Module = fx.Module("tickets",
	fx.Provide(NewRepository),
)
