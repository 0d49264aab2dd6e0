package models

import "time"

// BusinessUnit is the discovered BU registry. Rows are upserted during job
// sync; IsEnabled is an admin toggle controlling whether the unit's jobs are
// pulled at all.
type BusinessUnit struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	BusinessUnitId int       `gorm:"uniqueIndex;not null" json:"business_unit_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	IsEnabled      bool      `gorm:"default:true" json:"is_enabled"`
	DiscoveredAt   time.Time `json:"discovered_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
