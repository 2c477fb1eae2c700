// Package domain contains subscriptions, their line-item templates, and
// proxy orders joining a subscription to one order-cycle occurrence.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Subscription is a recurring order template attached to a schedule. It is
// created and edited by the surrounding system; jobs here only read it.
type Subscription struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	ShopID           snowflake.ID `gorm:"not null;index"`
	CustomerID       snowflake.ID `gorm:"not null;index"`
	ScheduleID       snowflake.ID `gorm:"not null;index"`
	PaymentMethodID  snowflake.ID `gorm:"not null"`
	ShippingMethodID snowflake.ID `gorm:"not null"`
	BeginsAt         time.Time    `gorm:"not null"`
	EndsAt           *time.Time   `gorm:""`
	PausedAt         *time.Time   `gorm:""`
	CanceledAt       *time.Time   `gorm:""`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Runnable reports whether placement may act on the subscription at all.
// Paused subscriptions resume later; canceled ones never do.
func (s Subscription) Runnable() bool {
	return s.PausedAt == nil && s.CanceledAt == nil
}

// Covers reports whether the subscription window spans an order cycle that
// closes at closeAt.
func (s Subscription) Covers(closeAt time.Time) bool {
	if s.BeginsAt.After(closeAt) {
		return false
	}
	return s.EndsAt == nil || s.EndsAt.After(closeAt)
}

// SubscriptionLineItem is one template row materialized into each order.
type SubscriptionLineItem struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	SubscriptionID snowflake.ID    `gorm:"not null;index"`
	VariantID      snowflake.ID    `gorm:"not null;index"`
	Quantity       int             `gorm:"not null"`
	PriceEstimate  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
}

// TableName sets the database table name.
func (SubscriptionLineItem) TableName() string { return "subscription_line_items" }

// ProxyOrder tracks one subscription's materialization into one order
// cycle's order. At most one exists per (order cycle, subscription) pair.
//
// Lifecycle: created by schedule sync; claimed_at is a short-lived worker
// claim; placed_at is set by placement; skipped_at marks a deliberate
// zero-quantity skip that is never retried; confirmed_at is set after the
// cycle closes; canceled_at is terminal.
type ProxyOrder struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	SubscriptionID snowflake.ID  `gorm:"not null;uniqueIndex:idx_proxy_orders_cycle_subscription"`
	OrderCycleID   snowflake.ID  `gorm:"not null;uniqueIndex:idx_proxy_orders_cycle_subscription"`
	OrderID        *snowflake.ID `gorm:"index"`
	ClaimedAt      *time.Time    `gorm:""`
	PlacedAt       *time.Time    `gorm:""`
	SkippedAt      *time.Time    `gorm:""`
	ConfirmedAt    *time.Time    `gorm:""`
	CanceledAt     *time.Time    `gorm:""`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProxyOrder) TableName() string { return "proxy_orders" }
