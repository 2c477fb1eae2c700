package ordercycle

import (
	"github.com/openfoodhub/foodhub/internal/ordercycle/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ordercycle",
	fx.Provide(repository.New),
)
