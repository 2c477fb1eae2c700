// Package domain contains order cycles, exchanges, schedules, and variant
// stock, the time-boxed market windows subscriptions attach to.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// OrderCycle is a recurring, time-boxed market window.
type OrderCycle struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	CoordinatorID snowflake.ID `gorm:"not null;index"`
	Name          string       `gorm:"type:text;not null"`
	OrdersOpenAt  time.Time    `gorm:"not null;index"`
	OrdersCloseAt time.Time    `gorm:"not null;index"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrderCycle) TableName() string { return "order_cycles" }

// OpenAt reports whether the cycle accepts orders at t (close is exclusive).
func (c OrderCycle) OpenAt(t time.Time) bool {
	return !t.Before(c.OrdersOpenAt) && t.Before(c.OrdersCloseAt)
}

// ClosedWithin reports whether the cycle closed inside (t-lookback, t].
func (c OrderCycle) ClosedWithin(t time.Time, lookback time.Duration) bool {
	return !c.OrdersCloseAt.After(t) && c.OrdersCloseAt.After(t.Add(-lookback))
}

// Exchange links a sender/receiver pair to an order cycle. Outgoing
// exchanges carry the variants actually offered to customers in the cycle.
type Exchange struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	OrderCycleID snowflake.ID `gorm:"not null;index"`
	SenderID     snowflake.ID `gorm:"not null"`
	ReceiverID   snowflake.ID `gorm:"not null"`
	Incoming     bool         `gorm:"not null"`
}

// TableName sets the database table name.
func (Exchange) TableName() string { return "exchanges" }

// ExchangeVariant is one variant carried by an exchange.
type ExchangeVariant struct {
	ExchangeID snowflake.ID `gorm:"primaryKey"`
	VariantID  snowflake.ID `gorm:"primaryKey"`
}

// TableName sets the database table name.
func (ExchangeVariant) TableName() string { return "exchange_variants" }

// Schedule is a named recurring sequence of order cycles.
type Schedule struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Name string       `gorm:"type:text;not null"`
}

// TableName sets the database table name.
func (Schedule) TableName() string { return "schedules" }

// ScheduleOrderCycle attaches an order cycle to a schedule.
type ScheduleOrderCycle struct {
	ScheduleID   snowflake.ID `gorm:"primaryKey"`
	OrderCycleID snowflake.ID `gorm:"primaryKey"`
}

// TableName sets the database table name.
func (ScheduleOrderCycle) TableName() string { return "schedule_order_cycles" }

// Variant is a sellable product variant with stock semantics.
type Variant struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	ProducerID snowflake.ID `gorm:"not null;index"`
	SKU        string       `gorm:"type:text;not null"`
	OnHand     int          `gorm:"not null"`
	OnDemand   bool         `gorm:"not null;default:false"`
	Tracked    bool         `gorm:"not null;default:false"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Variant) TableName() string { return "variants" }

// Cap returns the purchasable quantity for a request against this variant.
// On-demand variants never cap; stock-limited variants cap at on hand,
// floored at zero.
func (v Variant) Cap(requested int) int {
	if requested <= 0 {
		return 0
	}
	if v.OnDemand {
		return requested
	}
	onHand := v.OnHand
	if onHand < 0 {
		onHand = 0
	}
	if requested < onHand {
		return requested
	}
	return onHand
}
