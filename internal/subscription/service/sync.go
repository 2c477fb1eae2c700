package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfoodhub/foodhub/internal/subscription/domain"
	"github.com/openfoodhub/foodhub/pkg/db"
	"go.uber.org/zap"
)

// SyncSchedules creates a proxy order for every (open cycle, covering
// subscription) pair that lacks one. Concurrent syncs racing on the same
// pair fall into the unique index; the loser is ignored.
func (s *Service) SyncSchedules(ctx context.Context) error {
	now := s.clock.Now()
	cycles, err := s.cycleRepo.OpenCycles(ctx, s.db, now)
	if err != nil {
		return fmt.Errorf("open cycles: %w", err)
	}

	var jobErr error
	created := 0
	for _, cycle := range cycles {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		subscriptions, err := s.subRepo.SubscriptionsForCycle(ctx, s.db, cycle.ID, cycle.OrdersCloseAt)
		if err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("cycle %s: %w", cycle.ID, err))
			continue
		}
		for _, sub := range subscriptions {
			po := domain.ProxyOrder{
				ID:             s.genID.Generate(),
				SubscriptionID: sub.ID,
				OrderCycleID:   cycle.ID,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.subRepo.InsertProxyOrder(ctx, s.db, &po); err != nil {
				if db.IsDuplicateKeyErr(err) {
					continue
				}
				jobErr = errors.Join(jobErr, fmt.Errorf("proxy order for subscription %s: %w", sub.ID, err))
				continue
			}
			created++
		}
	}

	if created > 0 {
		s.log.Info("schedule sync created proxy orders",
			zap.Int("created", created),
			zap.Int("open_cycles", len(cycles)),
		)
	}
	return jobErr
}
