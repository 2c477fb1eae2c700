package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/openfoodhub/foodhub/internal/observability/metrics"
	orderdomain "github.com/openfoodhub/foodhub/internal/order/domain"
	ordercycledomain "github.com/openfoodhub/foodhub/internal/ordercycle/domain"
	"github.com/openfoodhub/foodhub/internal/notification"
	"github.com/openfoodhub/foodhub/internal/subscription/domain"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errOrderAlreadyPlaced is an internal signal: the reused order finished
// checkout in an earlier attempt and must not be touched again.
var errOrderAlreadyPlaced = errors.New("materialized order already complete")

func (s *Service) PlaceOrders(ctx context.Context) error {
	return s.placeOrders(ctx, 0)
}

func (s *Service) PlaceOrdersForCycle(ctx context.Context, orderCycleID snowflake.ID) error {
	return s.placeOrders(ctx, orderCycleID)
}

// placeOrders sweeps eligible proxy orders in batches. Each item is claimed,
// processed, and marked independently; one failure never aborts the batch.
func (s *Service) placeOrders(ctx context.Context, onlyCycle snowflake.ID) error {
	now := s.clock.Now()
	staleBefore := now.Add(-s.cfg.ClaimTTL)

	var jobErr error
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		eligible, err := s.subRepo.EligibleForPlacement(ctx, s.db, now, staleBefore, onlyCycle, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, fmt.Errorf("eligible proxy orders: %w", err))
		}
		if len(eligible) == 0 {
			break
		}

		claimedAny := false
		for _, po := range eligible {
			claimed, err := s.placeOne(ctx, po, now, staleBefore)
			claimedAny = claimedAny || claimed
			if err != nil {
				jobErr = errors.Join(jobErr, fmt.Errorf("proxy order %s: %w", po.ID, err))
			}
		}
		// Every claim lost to another worker: nothing left for us this sweep.
		if !claimedAny {
			break
		}
	}
	return jobErr
}

// placeOne processes a single proxy order. It reports whether this worker
// won the claim. Panics are converted into per-item errors so the batch
// keeps going.
func (s *Service) placeOne(ctx context.Context, po domain.ProxyOrder, now, staleBefore time.Time) (claimed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("placement panic: %v", r)
			s.diag.Bug("placement_panic", "placement panicked on proxy order",
				zap.String("proxy_order_id", po.ID.String()),
				zap.Any("panic", r),
			)
		}
	}()

	claimed, err = s.subRepo.Claim(ctx, s.db, po.ID, now, staleBefore)
	if err != nil {
		return false, err
	}
	if !claimed {
		obsmetrics.Jobs().IncClaimConflict("placement")
		return false, nil
	}

	sub, err := s.subRepo.FindSubscription(ctx, s.db, po.SubscriptionID)
	if err != nil {
		return true, err
	}
	if sub == nil || !sub.Runnable() {
		// Pause/cancel landed between eligibility and claim. The claim
		// expires on its own; eligibility re-evaluates next sweep.
		return true, nil
	}

	cycle, err := s.cycleRepo.FindByID(ctx, s.db, po.OrderCycleID)
	if err != nil {
		return true, err
	}
	if cycle == nil {
		s.diag.Bug("proxy_order_integrity", "proxy order references missing order cycle",
			zap.String("proxy_order_id", po.ID.String()),
			zap.String("order_cycle_id", po.OrderCycleID.String()),
		)
		return true, nil
	}

	template, err := s.subRepo.LineItems(ctx, s.db, sub.ID)
	if err != nil {
		return true, err
	}
	distributed, err := s.cycleRepo.DistributedVariants(ctx, s.db, cycle.ID)
	if err != nil {
		return true, err
	}

	changes := map[snowflake.ID]int{}
	var order *orderdomain.Order
	var items []orderdomain.LineItem
	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, items, err = s.materializeOrder(ctx, tx, sub, po, template, now)
		if err != nil {
			return err
		}
		itemsTotal, err := s.capLineItems(ctx, tx, items, distributed, changes, now)
		if err != nil {
			return err
		}
		total := itemsTotal
		if itemsTotal.IsZero() {
			// Nothing purchasable: strip fees/discounts, leave the cart.
			if err := tx.WithContext(ctx).Where("order_id = ?", order.ID).Delete(&orderdomain.Adjustment{}).Error; err != nil {
				return err
			}
		} else {
			var adjustments []orderdomain.Adjustment
			if err := tx.WithContext(ctx).Where("order_id = ?", order.ID).Find(&adjustments).Error; err != nil {
				return err
			}
			total = orderdomain.SumTotal(items, adjustments)
		}
		order.Total = total
		return tx.WithContext(ctx).Model(&orderdomain.Order{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{"total": total, "updated_at": now}).Error
	})
	if errors.Is(txErr, errOrderAlreadyPlaced) {
		s.diag.Bug("placement_integrity", "order already complete when placement expected a cart",
			zap.String("proxy_order_id", po.ID.String()),
		)
		if po.OrderID != nil {
			return true, s.subRepo.MarkPlaced(ctx, s.db, po.ID, *po.OrderID, now)
		}
		return true, nil
	}
	if txErr != nil {
		return true, txErr
	}

	if order.Total.IsZero() {
		obsmetrics.Jobs().IncPlacementEmpty()
		if err := s.subRepo.MarkSkipped(ctx, s.db, po.ID, &order.ID, now); err != nil {
			return true, err
		}
		if err := s.notifier.Enqueue(ctx, s.db, notification.KindPlacementEmpty, order.ID, &po.ID, changes, now); err != nil {
			s.diag.Warn("notification_enqueue", "failed to enqueue empty-order notification",
				zap.String("proxy_order_id", po.ID.String()),
				zap.Error(err),
			)
		}
		return true, nil
	}

	if err := s.advanceToComplete(ctx, order, now); err != nil {
		// Progression returned a failure signal. Record the issue and mark
		// the proxy order placed anyway so it is not reprocessed forever;
		// no notification goes out for a failed progression.
		s.diag.Warn("placement_order_progression", "order did not reach completion",
			zap.String("proxy_order_id", po.ID.String()),
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return true, s.subRepo.MarkPlaced(ctx, s.db, po.ID, order.ID, now)
	}

	if err := s.subRepo.MarkPlaced(ctx, s.db, po.ID, order.ID, now); err != nil {
		return true, err
	}
	obsmetrics.Jobs().IncPlacementPlaced()
	if err := s.notifier.Enqueue(ctx, s.db, notification.KindPlacementSuccess, order.ID, &po.ID, changes, now); err != nil {
		// placed_at is already set; the placement stands.
		s.diag.Warn("notification_enqueue", "failed to enqueue placement notification",
			zap.String("proxy_order_id", po.ID.String()),
			zap.Error(err),
		)
	}
	return true, nil
}

// materializeOrder creates (or rebuilds) the concrete order for a proxy
// order from the subscription template. A reused order that already
// completed is never mutated.
func (s *Service) materializeOrder(ctx context.Context, tx *gorm.DB, sub *domain.Subscription, po domain.ProxyOrder, template []domain.SubscriptionLineItem, now time.Time) (*orderdomain.Order, []orderdomain.LineItem, error) {
	var order orderdomain.Order
	if po.OrderID != nil {
		err := tx.WithContext(ctx).Where("id = ?", *po.OrderID).First(&order).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Dangling reference; fall through to a fresh order.
		case err != nil:
			return nil, nil, err
		default:
			if mutErr := order.EnsureMutable(); mutErr != nil {
				if errors.Is(mutErr, orderdomain.ErrAlreadyComplete) {
					return nil, nil, errOrderAlreadyPlaced
				}
				return nil, nil, mutErr
			}
			// Rebuild the cart from the template for a clean re-attempt.
			if err := tx.WithContext(ctx).Where("order_id = ?", order.ID).Delete(&orderdomain.LineItem{}).Error; err != nil {
				return nil, nil, err
			}
			items, err := s.createLineItems(ctx, tx, order.ID, template)
			return &order, items, err
		}
	}

	order = orderdomain.Order{
		ID:               s.genID.Generate(),
		EnterpriseID:     sub.ShopID,
		CustomerID:       sub.CustomerID,
		OrderCycleID:     &po.OrderCycleID,
		ShippingMethodID: sub.ShippingMethodID,
		PaymentMethodID:  sub.PaymentMethodID,
		State:            orderdomain.StateCart,
		Total:            decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, nil, err
	}
	items, err := s.createLineItems(ctx, tx, order.ID, template)
	return &order, items, err
}

func (s *Service) createLineItems(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, template []domain.SubscriptionLineItem) ([]orderdomain.LineItem, error) {
	items := lo.Map(template, func(t domain.SubscriptionLineItem, _ int) orderdomain.LineItem {
		return orderdomain.LineItem{
			ID:        s.genID.Generate(),
			OrderID:   orderID,
			VariantID: t.VariantID,
			Quantity:  t.Quantity,
			Price:     t.PriceEstimate,
		}
	})
	if len(items) == 0 {
		return items, nil
	}
	if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// capLineItems applies stock capping in place and returns the resulting
// item total. A variant absent from the cycle's outgoing exchanges caps to
// zero regardless of stock. Capped quantities are persisted and stock on
// hand is decremented within the caller's transaction.
func (s *Service) capLineItems(ctx context.Context, tx *gorm.DB, items []orderdomain.LineItem, distributed map[snowflake.ID]bool, changes map[snowflake.ID]int, now time.Time) (decimal.Decimal, error) {
	for i := range items {
		requested := items[i].Quantity
		capped := 0
		var variant *ordercycledomain.Variant
		if distributed[items[i].VariantID] {
			var err error
			variant, err = s.cycleRepo.FindVariant(ctx, tx, items[i].VariantID)
			if err != nil {
				return decimal.Zero, err
			}
			if variant != nil {
				capped = variant.Cap(requested)
			}
		}
		if capped < requested {
			changes[items[i].ID] = requested - capped
			obsmetrics.Jobs().IncStockCap()
		}
		if capped != requested {
			if err := tx.WithContext(ctx).Model(&orderdomain.LineItem{}).
				Where("id = ?", items[i].ID).
				Update("quantity", capped).Error; err != nil {
				return decimal.Zero, err
			}
			items[i].Quantity = capped
		}
		if capped > 0 {
			if err := s.cycleRepo.AdjustOnHand(ctx, tx, items[i].VariantID, -capped, now); err != nil {
				return decimal.Zero, err
			}
		}
	}
	return orderdomain.SumTotal(items, nil), nil
}

// advanceToComplete walks the order through checkout without capturing
// payment and without any generic confirmation email.
func (s *Service) advanceToComplete(ctx context.Context, order *orderdomain.Order, now time.Time) error {
	if err := order.BeginCheckout(); err != nil {
		return err
	}
	if err := order.Complete(now); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&orderdomain.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"state":        order.State,
			"completed_at": order.CompletedAt,
			"total":        order.Total,
			"updated_at":   now,
		}).Error
}
