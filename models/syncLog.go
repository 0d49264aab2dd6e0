package models

import (
	"encoding/json"
	"time"
)

// syncLogMaxErrors caps how many per-record error messages a log row keeps.
const syncLogMaxErrors = 20

// SyncLog is one append-only row per sync invocation. It is opened as
// "running" before the fetch and finalized exactly once at job end; rows are
// never deleted.
type SyncLog struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	SyncType    string     `gorm:"size:20;index;not null" json:"sync_type"`
	Status      string     `gorm:"size:20;index;not null" json:"status"`
	TriggeredBy string     `gorm:"size:20" json:"triggered_by"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`

	RecordsProcessed int `json:"records_processed"`
	RecordsCreated   int `json:"records_created"`
	RecordsUpdated   int `json:"records_updated"`
	RecordsClosed    int `json:"records_closed"`

	ErrorsJSON []byte `gorm:"type:json" json:"errors"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SetErrors stores at most the first syncLogMaxErrors messages, with a count
// marker when more were collected.
func (s *SyncLog) SetErrors(errs []string) {
	if len(errs) == 0 {
		s.ErrorsJSON = nil
		return
	}
	kept := errs
	if len(kept) > syncLogMaxErrors {
		kept = append([]string(nil), kept[:syncLogMaxErrors]...)
		kept = append(kept, "...and more")
	}
	data, err := json.Marshal(kept)
	if err != nil {
		return
	}
	s.ErrorsJSON = data
}

func (s *SyncLog) Errors() []string {
	if len(s.ErrorsJSON) == 0 {
		return nil
	}
	var errs []string
	if err := json.Unmarshal(s.ErrorsJSON, &errs); err != nil {
		return nil
	}
	return errs
}
