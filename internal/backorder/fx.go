package backorder

import "go.uber.org/fx"

var Module = fx.Module("backorder",
	fx.Provide(New),
)
