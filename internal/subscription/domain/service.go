package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service materializes subscriptions into concrete orders as order cycles
// open and close.
type Service interface {
	// SyncSchedules creates missing proxy orders for every currently open
	// order cycle.
	SyncSchedules(ctx context.Context) error
	// PlaceOrders places eligible proxy orders for all open cycles.
	PlaceOrders(ctx context.Context) error
	// PlaceOrdersForCycle restricts placement to one order cycle.
	PlaceOrdersForCycle(ctx context.Context, orderCycleID snowflake.ID) error
	// ConfirmOrders settles payment for proxy orders whose cycle recently
	// closed and marks them confirmed.
	ConfirmOrders(ctx context.Context) error
}
