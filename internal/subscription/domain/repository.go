package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	LineItems(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]SubscriptionLineItem, error)

	// SubscriptionsForCycle returns subscriptions attached (via schedule) to
	// the order cycle that cover its close and are not canceled.
	SubscriptionsForCycle(ctx context.Context, db *gorm.DB, orderCycleID snowflake.ID, closeAt time.Time) ([]Subscription, error)
	InsertProxyOrder(ctx context.Context, db *gorm.DB, po *ProxyOrder) error

	// EligibleForPlacement selects proxy orders whose cycle is open at `at`,
	// that are neither placed, skipped, nor canceled, whose subscription is
	// runnable, and whose claim is free or stale. A non-zero onlyCycle
	// restricts the query to that order cycle.
	EligibleForPlacement(ctx context.Context, db *gorm.DB, at, staleClaimBefore time.Time, onlyCycle snowflake.ID, limit int) ([]ProxyOrder, error)
	// Claim conditionally takes the proxy order for this worker. It reports
	// false when a concurrent worker holds or won the claim.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now, staleClaimBefore time.Time) (bool, error)
	MarkPlaced(ctx context.Context, db *gorm.DB, id snowflake.ID, orderID snowflake.ID, now time.Time) error
	// MarkSkipped records a deliberate zero-quantity skip; skipped proxy
	// orders are excluded from eligibility forever.
	MarkSkipped(ctx context.Context, db *gorm.DB, id snowflake.ID, orderID *snowflake.ID, now time.Time) error

	// EligibleForConfirmation selects placed, unconfirmed proxy orders whose
	// cycle closed within the lookback window ending at `at`.
	EligibleForConfirmation(ctx context.Context, db *gorm.DB, at time.Time, lookback time.Duration, limit int) ([]ProxyOrder, error)
	MarkConfirmed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
}
