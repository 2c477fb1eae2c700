// Package domain contains the billable period model, the unit of usage-based
// fee calculation for enterprises.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	enterprisedomain "github.com/openfoodhub/foodhub/internal/enterprise/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidWindow = errors.New("billing window is empty or in the future")
)

// BillablePeriod is one interval of consistent billing attributes for one
// enterprise. Periods produced by a run are contiguous and non-overlapping,
// with begins_at < ends_at and a half-open [begins_at, ends_at) meaning.
type BillablePeriod struct {
	ID           snowflake.ID           `gorm:"primaryKey"`
	EnterpriseID snowflake.ID           `gorm:"not null;uniqueIndex:idx_billable_periods_enterprise_begins,where:deleted_at IS NULL"`
	OwnerID      snowflake.ID           `gorm:"not null"`
	BeginsAt     time.Time              `gorm:"not null;uniqueIndex:idx_billable_periods_enterprise_begins,where:deleted_at IS NULL"`
	EndsAt       time.Time              `gorm:"not null"`
	Sells        enterprisedomain.Sells `gorm:"type:text;not null"`
	Trial        bool                   `gorm:"not null;default:false"`
	Turnover     decimal.Decimal        `gorm:"type:numeric(14,2);not null"`
	CreatedAt    time.Time              `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time              `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt    gorm.DeletedAt         `gorm:"index"`
}

// TableName sets the database table name.
func (BillablePeriod) TableName() string { return "billable_periods" }
