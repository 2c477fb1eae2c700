// Package domain contains persistence models for enterprises and their
// attribute-change history.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Sells is the sales mode of an enterprise.
type Sells string

const (
	SellsNone Sells = "none"
	SellsOwn  Sells = "own"
	SellsAny  Sells = "any"
)

// Enterprise is a producer or shop on the marketplace.
type Enterprise struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	OwnerID          snowflake.ID `gorm:"not null;index"`
	Name             string       `gorm:"type:text;not null"`
	Sells            Sells        `gorm:"type:text;not null"`
	ShopTrialStartAt *time.Time   `gorm:""`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Enterprise) TableName() string { return "enterprises" }

// TrialWindow returns the enterprise's trial window, both nil when no trial
// was ever started. Expiry is start plus the configured trial length.
func (e Enterprise) TrialWindow(trialLengthDays int) (start, expiry *time.Time) {
	if e.ShopTrialStartAt == nil {
		return nil, nil
	}
	s := e.ShopTrialStartAt.UTC()
	x := s.AddDate(0, 0, trialLengthDays)
	return &s, &x
}

// EnterpriseVersion is one entry of the append-only attribute log. A row
// records the values the enterprise held up to RecordedAt; rows are written
// by the surrounding system whenever sells or ownership changes.
type EnterpriseVersion struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	EnterpriseID snowflake.ID `gorm:"not null;index:idx_enterprise_versions_window"`
	OwnerID      snowflake.ID `gorm:"not null"`
	Sells        Sells        `gorm:"type:text;not null"`
	RecordedAt   time.Time    `gorm:"not null;index:idx_enterprise_versions_window"`
}

// TableName sets the database table name.
func (EnterpriseVersion) TableName() string { return "enterprise_versions" }
