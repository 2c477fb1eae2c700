package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openfoodhub/foodhub/internal/ordercycle/domain"
	"gorm.io/gorm"
)

type repositoryImpl struct{}

func New() domain.Repository {
	return &repositoryImpl{}
}

func (r *repositoryImpl) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.OrderCycle, error) {
	var cycle domain.OrderCycle
	err := db.WithContext(ctx).Where("id = ?", id).First(&cycle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (r *repositoryImpl) OpenCycles(ctx context.Context, db *gorm.DB, at time.Time) ([]domain.OrderCycle, error) {
	var cycles []domain.OrderCycle
	err := db.WithContext(ctx).
		Where("orders_open_at <= ? AND orders_close_at > ?", at, at).
		Order("orders_close_at ASC, id ASC").
		Find(&cycles).Error
	if err != nil {
		return nil, err
	}
	return cycles, nil
}

func (r *repositoryImpl) CyclesClosedWithin(ctx context.Context, db *gorm.DB, at time.Time, lookback time.Duration) ([]domain.OrderCycle, error) {
	var cycles []domain.OrderCycle
	err := db.WithContext(ctx).
		Where("orders_close_at <= ? AND orders_close_at > ?", at, at.Add(-lookback)).
		Order("orders_close_at ASC, id ASC").
		Find(&cycles).Error
	if err != nil {
		return nil, err
	}
	return cycles, nil
}

func (r *repositoryImpl) DistributedVariants(ctx context.Context, db *gorm.DB, orderCycleID snowflake.ID) (map[snowflake.ID]bool, error) {
	var variantIDs []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT ev.variant_id
		 FROM exchange_variants ev
		 JOIN exchanges e ON e.id = ev.exchange_id
		 WHERE e.order_cycle_id = ? AND e.incoming = ?`,
		orderCycleID,
		false,
	).Scan(&variantIDs).Error
	if err != nil {
		return nil, err
	}
	distributed := make(map[snowflake.ID]bool, len(variantIDs))
	for _, id := range variantIDs {
		distributed[id] = true
	}
	return distributed, nil
}

func (r *repositoryImpl) FindVariant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Variant, error) {
	var variant domain.Variant
	err := db.WithContext(ctx).Where("id = ?", id).First(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repositoryImpl) AdjustOnHand(ctx context.Context, db *gorm.DB, variantID snowflake.ID, delta int, at time.Time) error {
	if delta == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE variants
		 SET on_hand = on_hand + ?, updated_at = ?
		 WHERE id = ? AND on_demand = ?`,
		delta,
		at.UTC(),
		variantID,
		false,
	).Error
}
