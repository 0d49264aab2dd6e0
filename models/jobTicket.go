package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobTicket is the local mirror of a completed Fieldline job, feeding the
// debrief queue. DebriefStatus is locally owned.
type JobTicket struct {
	ID    uint `gorm:"primary_key" json:"id"`
	JobId int  `gorm:"uniqueIndex;not null" json:"job_id"`

	// Externally-sourced
	JobNumber        string          `gorm:"size:64" json:"job_number"`
	BusinessUnitId   int             `gorm:"index" json:"business_unit_id"`
	BusinessUnitName string          `gorm:"size:255" json:"business_unit_name"`
	JobTypeName      string          `gorm:"size:255" json:"job_type_name"`
	TechnicianName   string          `gorm:"size:255" json:"technician_name"`
	CustomerId       int             `gorm:"index" json:"customer_id"`
	CustomerName     string          `gorm:"size:255" json:"customer_name"`
	InvoiceSummary   string          `gorm:"type:text" json:"invoice_summary"`
	InvoiceTotal     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"invoice_total"`
	InvoiceBalance   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"invoice_balance"`
	PaymentCollected bool            `json:"payment_collected"`
	PhotoCount       int             `json:"photo_count"`
	FormCount        int             `json:"form_count"`
	CompletedAt      *time.Time      `gorm:"index" json:"completed_at"`

	// Derived at sync time
	JobCategory     string `gorm:"size:50;index" json:"job_category"`
	TradeType       string `gorm:"size:50;index" json:"trade_type"`
	CustomerSegment string `gorm:"size:50;index" json:"customer_segment"`

	// Locally-owned; sync never writes these
	DebriefStatus DebriefStatus `gorm:"size:20;index;default:'pending'" json:"debrief_status"`
	DebriefNotes  string        `gorm:"type:text" json:"debrief_notes"`
	DebriefedBy   *int          `json:"debriefed_by"`
	DebriefedAt   *time.Time    `json:"debriefed_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
