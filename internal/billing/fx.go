package billing

import (
	"github.com/openfoodhub/foodhub/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(service.New),
)
