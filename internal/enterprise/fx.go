package enterprise

import (
	"github.com/openfoodhub/foodhub/internal/enterprise/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("enterprise",
	fx.Provide(repository.New),
)
