package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*OrderCycle, error)
	OpenCycles(ctx context.Context, db *gorm.DB, at time.Time) ([]OrderCycle, error)
	CyclesClosedWithin(ctx context.Context, db *gorm.DB, at time.Time, lookback time.Duration) ([]OrderCycle, error)
	// DistributedVariants returns the set of variant ids offered by the
	// cycle's outgoing exchanges.
	DistributedVariants(ctx context.Context, db *gorm.DB, orderCycleID snowflake.ID) (map[snowflake.ID]bool, error)
	FindVariant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Variant, error)
	// AdjustOnHand decrements stock for a stock-limited variant at the given
	// time. On-demand variants are left untouched.
	AdjustOnHand(ctx context.Context, db *gorm.DB, variantID snowflake.ID, delta int, at time.Time) error
}
