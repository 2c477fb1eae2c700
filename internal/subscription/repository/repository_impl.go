package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openfoodhub/foodhub/internal/subscription/domain"
	"gorm.io/gorm"
)

type repositoryImpl struct{}

func New() domain.Repository {
	return &repositoryImpl{}
}

func (r *repositoryImpl) FindSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repositoryImpl) LineItems(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]domain.SubscriptionLineItem, error) {
	var items []domain.SubscriptionLineItem
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repositoryImpl) SubscriptionsForCycle(ctx context.Context, db *gorm.DB, orderCycleID snowflake.ID, closeAt time.Time) ([]domain.Subscription, error) {
	var subscriptions []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT s.*
		 FROM subscriptions s
		 JOIN schedule_order_cycles soc ON soc.schedule_id = s.schedule_id
		 WHERE soc.order_cycle_id = ?
		   AND s.canceled_at IS NULL
		   AND s.begins_at <= ?
		   AND (s.ends_at IS NULL OR s.ends_at > ?)
		 ORDER BY s.id`,
		orderCycleID,
		closeAt,
		closeAt,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repositoryImpl) InsertProxyOrder(ctx context.Context, db *gorm.DB, po *domain.ProxyOrder) error {
	return db.WithContext(ctx).Create(po).Error
}

func (r *repositoryImpl) EligibleForPlacement(ctx context.Context, db *gorm.DB, at, staleClaimBefore time.Time, onlyCycle snowflake.ID, limit int) ([]domain.ProxyOrder, error) {
	var proxyOrders []domain.ProxyOrder
	err := db.WithContext(ctx).Raw(
		`SELECT po.*
		 FROM proxy_orders po
		 JOIN order_cycles oc ON oc.id = po.order_cycle_id
		 JOIN subscriptions s ON s.id = po.subscription_id
		 WHERE oc.orders_open_at <= ?
		   AND oc.orders_close_at > ?
		   AND po.canceled_at IS NULL
		   AND po.placed_at IS NULL
		   AND po.skipped_at IS NULL
		   AND (po.claimed_at IS NULL OR po.claimed_at < ?)
		   AND s.paused_at IS NULL
		   AND s.canceled_at IS NULL
		   AND (? = 0 OR po.order_cycle_id = ?)
		 ORDER BY po.id
		 LIMIT ?`,
		at,
		at,
		staleClaimBefore,
		int64(onlyCycle),
		onlyCycle,
		limit,
	).Scan(&proxyOrders).Error
	if err != nil {
		return nil, err
	}
	return proxyOrders, nil
}

// Claim is the interlock against concurrent placement workers: a conditional
// update guarded on the same predicate as eligibility, judged by rows
// affected rather than a read-then-write.
func (r *repositoryImpl) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now, staleClaimBefore time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE proxy_orders
		 SET claimed_at = ?, updated_at = ?
		 WHERE id = ?
		   AND placed_at IS NULL
		   AND skipped_at IS NULL
		   AND canceled_at IS NULL
		   AND (claimed_at IS NULL OR claimed_at < ?)`,
		now,
		now,
		id,
		staleClaimBefore,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkPlaced(ctx context.Context, db *gorm.DB, id snowflake.ID, orderID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE proxy_orders
		 SET placed_at = COALESCE(placed_at, ?), order_id = ?, updated_at = ?
		 WHERE id = ?`,
		now,
		orderID,
		now,
		id,
	).Error
}

func (r *repositoryImpl) MarkSkipped(ctx context.Context, db *gorm.DB, id snowflake.ID, orderID *snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE proxy_orders
		 SET skipped_at = COALESCE(skipped_at, ?), order_id = ?, updated_at = ?
		 WHERE id = ?`,
		now,
		orderID,
		now,
		id,
	).Error
}

func (r *repositoryImpl) EligibleForConfirmation(ctx context.Context, db *gorm.DB, at time.Time, lookback time.Duration, limit int) ([]domain.ProxyOrder, error) {
	var proxyOrders []domain.ProxyOrder
	err := db.WithContext(ctx).Raw(
		`SELECT po.*
		 FROM proxy_orders po
		 JOIN order_cycles oc ON oc.id = po.order_cycle_id
		 WHERE oc.orders_close_at <= ?
		   AND oc.orders_close_at > ?
		   AND po.placed_at IS NOT NULL
		   AND po.confirmed_at IS NULL
		   AND po.canceled_at IS NULL
		 ORDER BY po.id
		 LIMIT ?`,
		at,
		at.Add(-lookback),
		limit,
	).Scan(&proxyOrders).Error
	if err != nil {
		return nil, err
	}
	return proxyOrders, nil
}

func (r *repositoryImpl) MarkConfirmed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE proxy_orders
		 SET confirmed_at = COALESCE(confirmed_at, ?), updated_at = ?
		 WHERE id = ?`,
		now,
		now,
		id,
	).Error
}
