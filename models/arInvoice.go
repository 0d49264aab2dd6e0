package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArInvoice is the local mirror of a Fieldline invoice. Externally-sourced and
// derived fields are refreshed on every sync; the locally-owned collections
// fields (OwnerId, WorkflowStatus, Notes, PromisedDate) are only written by
// dashboard mutations.
type ArInvoice struct {
	ID        uint `gorm:"primary_key" json:"id"`
	InvoiceId int  `gorm:"uniqueIndex;not null" json:"invoice_id"`

	// Externally-sourced
	InvoiceNumber    string          `gorm:"size:64" json:"invoice_number"`
	CustomerId       int             `gorm:"index" json:"customer_id"`
	CustomerName     string          `gorm:"size:255" json:"customer_name"`
	BusinessUnitId   int             `gorm:"index" json:"business_unit_id"`
	BusinessUnitName string          `gorm:"size:255" json:"business_unit_name"`
	InvoiceDate      *time.Time      `json:"invoice_date"`
	Total            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	Balance          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`

	// Derived at sync time
	AgingBucket     AgingBucket   `gorm:"size:20;index" json:"aging_bucket"`
	TradeType       string        `gorm:"size:50;index" json:"trade_type"`
	CustomerSegment string        `gorm:"size:50;index" json:"customer_segment"`
	Status          InvoiceStatus `gorm:"size:20;index;not null" json:"status"`

	// Locally-owned; sync never writes these
	OwnerId        *int           `gorm:"index" json:"owner_id"`
	WorkflowStatus WorkflowStatus `gorm:"size:20;default:'new'" json:"workflow_status"`
	Notes          string         `gorm:"type:text" json:"notes"`
	PromisedDate   *time.Time     `json:"promised_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoiceOwnership is the dependent tracking row, one per mirror row. It is
// created with the mirror row; creation is idempotent so a re-run after a
// partial failure converges.
type InvoiceOwnership struct {
	ID              uint       `gorm:"primary_key" json:"id"`
	InvoiceId       int        `gorm:"uniqueIndex;not null" json:"invoice_id"`
	OwnershipBucket string     `gorm:"size:50;not null;default:'unassigned'" json:"ownership_bucket"`
	AssignedUserId  *int       `gorm:"index" json:"assigned_user_id"`
	AssignedAt      *time.Time `json:"assigned_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
