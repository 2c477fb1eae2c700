// Package notification is the fire-and-forget outlet for domain-relevant
// outcomes. Messages are persisted to an outbox and delivered to the
// configured endpoint by a background job; the generic order-confirmation
// email flow is never used for subscription orders.
package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Kind names a domain outcome.
type Kind string

const (
	KindPlacementSuccess          Kind = "placement-success"
	KindPlacementEmpty            Kind = "placement-empty"
	KindConfirmationSuccess       Kind = "confirmation-success"
	KindConfirmationFailedPayment Kind = "confirmation-failed-payment"
)

// Notification is one outbox row. Changes maps line item ids to the
// quantity removed by stock capping.
type Notification struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	Kind         Kind              `gorm:"type:text;not null;index"`
	OrderID      snowflake.ID      `gorm:"not null;index"`
	ProxyOrderID *snowflake.ID     `gorm:"index"`
	Changes      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeliveredAt  *time.Time        `gorm:"index"`
	Attempts     int               `gorm:"not null;default:0"`
	LastError    *string           `gorm:"type:text"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notification_outbox" }

// HasChanges reports whether stock capping altered the order.
func (n Notification) HasChanges() bool {
	return len(n.Changes) > 0
}

// ChangesMap converts a capping change map into the persisted JSON shape.
func ChangesMap(changes map[snowflake.ID]int) datatypes.JSONMap {
	if len(changes) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(changes))
	for id, removed := range changes {
		out[id.String()] = removed
	}
	return out
}

// Enqueuer records a notification for later delivery. Callers pass their
// job's timestamp so fake-clock tests control outbox rows too.
type Enqueuer interface {
	Enqueue(ctx context.Context, db *gorm.DB, kind Kind, orderID snowflake.ID, proxyOrderID *snowflake.ID, changes map[snowflake.ID]int, at time.Time) error
}

type outbox struct {
	genID *snowflake.Node
}

// NewOutbox returns the outbox-backed Enqueuer.
func NewOutbox(genID *snowflake.Node) Enqueuer {
	return &outbox{genID: genID}
}

func (o *outbox) Enqueue(ctx context.Context, db *gorm.DB, kind Kind, orderID snowflake.ID, proxyOrderID *snowflake.ID, changes map[snowflake.ID]int, at time.Time) error {
	row := Notification{
		ID:           o.genID.Generate(),
		Kind:         kind,
		OrderID:      orderID,
		ProxyOrderID: proxyOrderID,
		Changes:      ChangesMap(changes),
		CreatedAt:    at.UTC(),
	}
	return db.WithContext(ctx).Create(&row).Error
}
