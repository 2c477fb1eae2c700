// Package domain defines the payment collaborator used at confirmation time.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	// ErrAuthorizationPending signals an offsite (3-D Secure style) flow the
	// customer has not finished; the item is retried on a later sweep.
	ErrAuthorizationPending = errors.New("payment authorization pending")
	ErrPaymentDeclined      = errors.New("payment declined")
)

// Gateway settles the outstanding amount of an order: captured when
// pre-authorized, purchased outright otherwise. Implementations decide
// which applies.
type Gateway interface {
	Collect(ctx context.Context, orderID snowflake.ID, paymentMethodID snowflake.ID, amount decimal.Decimal) error
}
