package models

import "time"

// NotificationLog is one row per delivery attempt, success or failure.
type NotificationLog struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	EventType string    `gorm:"size:50;index" json:"event_type"`
	Channel   string    `gorm:"size:20;index;not null" json:"channel"`
	Recipient string    `gorm:"size:255" json:"recipient"`
	Subject   string    `gorm:"size:255" json:"subject"`
	Status    string    `gorm:"size:20;index;not null" json:"status"`
	Error     string    `gorm:"type:text" json:"error"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
