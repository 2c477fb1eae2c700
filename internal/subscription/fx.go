package subscription

import (
	"github.com/openfoodhub/foodhub/internal/subscription/repository"
	"github.com/openfoodhub/foodhub/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.New,
		service.New,
	),
)
