// Package offline implements the payment gateway for hubs collecting money
// outside the platform (cash on delivery, bank transfer). Collection always
// succeeds; reconciliation happens elsewhere.
package offline

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/openfoodhub/foodhub/internal/payment/domain"
	"github.com/shopspring/decimal"
)

type gateway struct{}

func New() domain.Gateway {
	return gateway{}
}

func (gateway) Collect(context.Context, snowflake.ID, snowflake.ID, decimal.Decimal) error {
	return nil
}
