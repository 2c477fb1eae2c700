// Package domain contains the order lifecycle shared by placement and billing.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// State is the tagged lifecycle state of an order. Mutation attempts on a
// complete order are always rejected with ErrAlreadyComplete.
type State string

const (
	StateCart       State = "cart"
	StateInProgress State = "in_progress"
	StateComplete   State = "complete"
	StateCanceled   State = "canceled"
)

var (
	ErrAlreadyComplete       = errors.New("order already complete")
	ErrOrderCanceled         = errors.New("order canceled")
	ErrMissingShippingMethod = errors.New("order has no shipping method")
	ErrInvalidTransition     = errors.New("invalid order state transition")
)

// Order is a concrete customer order. Its full lifecycle is owned by the
// surrounding commerce system; jobs here only materialize and advance it.
type Order struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	EnterpriseID     snowflake.ID  `gorm:"not null;index"`
	CustomerID       snowflake.ID  `gorm:"not null;index"`
	OrderCycleID     *snowflake.ID `gorm:"index"`
	ShippingMethodID snowflake.ID  `gorm:""`
	PaymentMethodID  snowflake.ID  `gorm:""`
	State            State         `gorm:"type:text;not null"`
	Total            decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CompletedAt      *time.Time    `gorm:"index"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// EnsureMutable rejects mutations of orders past the point of no return.
func (o *Order) EnsureMutable() error {
	switch o.State {
	case StateComplete:
		return ErrAlreadyComplete
	case StateCanceled:
		return ErrOrderCanceled
	default:
		return nil
	}
}

// BeginCheckout moves a cart order into checkout.
func (o *Order) BeginCheckout() error {
	if err := o.EnsureMutable(); err != nil {
		return err
	}
	if o.State != StateCart {
		return ErrInvalidTransition
	}
	o.State = StateInProgress
	return nil
}

// Complete finishes checkout. The shipping method must already be resolved;
// payment capture is deferred to confirmation.
func (o *Order) Complete(now time.Time) error {
	if err := o.EnsureMutable(); err != nil {
		return err
	}
	if o.State != StateInProgress {
		return ErrInvalidTransition
	}
	if o.ShippingMethodID == 0 {
		return ErrMissingShippingMethod
	}
	o.State = StateComplete
	completedAt := now.UTC()
	o.CompletedAt = &completedAt
	return nil
}

// LineItem is one variant row on an order.
type LineItem struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	OrderID   snowflake.ID    `gorm:"not null;index"`
	VariantID snowflake.ID    `gorm:"not null;index"`
	Quantity  int             `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:numeric(14,2);not null"`
}

// TableName sets the database table name.
func (LineItem) TableName() string { return "line_items" }

// Adjustment is a fee or discount applied to an order.
type Adjustment struct {
	ID      snowflake.ID    `gorm:"primaryKey"`
	OrderID snowflake.ID    `gorm:"not null;index"`
	Label   string          `gorm:"type:text;not null"`
	Amount  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
}

// TableName sets the database table name.
func (Adjustment) TableName() string { return "adjustments" }

// SumTotal recomputes an order total from its line items and adjustments.
func SumTotal(items []LineItem, adjustments []Adjustment) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	for _, adj := range adjustments {
		total = total.Add(adj.Amount)
	}
	return total
}
