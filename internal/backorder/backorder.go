// Package backorder raises purchase requests with producers when cycle
// placement drives tracked stock negative.
package backorder

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type State string

const (
	StatePending State = "pending"
	StateSent    State = "sent"
	StateFailed  State = "failed"
)

// Backorder aggregates the oversold quantities of one producer for one
// order cycle. Lines maps variant id to the quantity owed.
type Backorder struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	ProducerID   snowflake.ID      `gorm:"not null;uniqueIndex:idx_backorders_producer_cycle"`
	OrderCycleID snowflake.ID      `gorm:"not null;uniqueIndex:idx_backorders_producer_cycle"`
	Lines        datatypes.JSONMap `gorm:"type:jsonb"`
	State        State             `gorm:"type:varchar(16);not null;default:'pending'"`
	Attempts     int               `gorm:"not null;default:0"`
	LastError    *string           `gorm:"type:text"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	SentAt       *time.Time        `gorm:""`
}

// TableName sets the database table name.
func (Backorder) TableName() string { return "backorders" }
