// Package domain carries the minimal invoice shape the billing cleanup
// depends on. Invoice issuance itself lives in the surrounding system.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceState tracks whether an invoice became a financial record.
type InvoiceState string

const (
	InvoiceStateDraft     InvoiceState = "draft"
	InvoiceStateFinalized InvoiceState = "finalized"
)

// Invoice links a billable period to the order that charges for it.
// A finalized invoice whose order completed protects its billable period
// from staleness cleanup.
type Invoice struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	BillablePeriodID snowflake.ID `gorm:"not null;index"`
	OrderID          snowflake.ID `gorm:"not null;index"`
	State            InvoiceState `gorm:"type:text;not null"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
