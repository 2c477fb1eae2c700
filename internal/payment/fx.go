package payment

import (
	"fmt"

	"github.com/openfoodhub/foodhub/internal/config"
	"github.com/openfoodhub/foodhub/internal/payment/domain"
	"github.com/openfoodhub/foodhub/internal/payment/offline"
	"go.uber.org/fx"
)

func NewGateway(cfg config.Config) (domain.Gateway, error) {
	switch cfg.PaymentGateway {
	case "", "offline":
		return offline.New(), nil
	default:
		return nil, fmt.Errorf("unsupported payment gateway %q", cfg.PaymentGateway)
	}
}

var Module = fx.Module("payment",
	fx.Provide(NewGateway),
)
