package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfoodhub/foodhub/internal/notification"
	orderdomain "github.com/openfoodhub/foodhub/internal/order/domain"
	paymentdomain "github.com/openfoodhub/foodhub/internal/payment/domain"
	"go.uber.org/zap"
)

// ConfirmOrders settles payment for proxy orders whose cycle closed within
// the lookback window. Pending offsite authorizations are left for the next
// sweep; declined payments notify the customer and keep the proxy order
// unconfirmed.
func (s *Service) ConfirmOrders(ctx context.Context) error {
	now := s.clock.Now()
	eligible, err := s.subRepo.EligibleForConfirmation(ctx, s.db, now, s.cfg.ConfirmationLookback, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("eligible confirmations: %w", err)
	}

	var jobErr error
	for _, po := range eligible {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if po.OrderID == nil {
			s.diag.Bug("confirmation_integrity", "placed proxy order has no order reference",
				zap.String("proxy_order_id", po.ID.String()),
			)
			continue
		}

		var order orderdomain.Order
		if err := s.db.WithContext(ctx).Where("id = ?", *po.OrderID).First(&order).Error; err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("proxy order %s: load order: %w", po.ID, err))
			continue
		}
		if order.State != orderdomain.StateComplete {
			// Placement left this order behind deliberately; nothing to settle.
			continue
		}

		err := s.gateway.Collect(ctx, order.ID, order.PaymentMethodID, order.Total)
		switch {
		case errors.Is(err, paymentdomain.ErrAuthorizationPending):
			s.log.Info("payment authorization pending, retrying next sweep",
				zap.String("proxy_order_id", po.ID.String()),
				zap.String("order_id", order.ID.String()),
			)
			continue
		case err != nil:
			if enqErr := s.notifier.Enqueue(ctx, s.db, notification.KindConfirmationFailedPayment, order.ID, &po.ID, nil, now); enqErr != nil {
				jobErr = errors.Join(jobErr, enqErr)
			}
			s.log.Warn("payment collection failed",
				zap.String("proxy_order_id", po.ID.String()),
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
			continue
		}

		if err := s.subRepo.MarkConfirmed(ctx, s.db, po.ID, now); err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if err := s.notifier.Enqueue(ctx, s.db, notification.KindConfirmationSuccess, order.ID, &po.ID, nil, now); err != nil {
			jobErr = errors.Join(jobErr, err)
		}
	}
	return jobErr
}
