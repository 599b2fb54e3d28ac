package models

import "time"

// StateEntry mirrors one named session collection as a JSON payload.
type StateEntry struct {
	SessionID string    `gorm:"column:session_id;type:varchar(64);primaryKey"`
	Name      string    `gorm:"column:name;type:varchar(32);primaryKey"`
	Payload   string    `gorm:"column:payload;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime;index:state_entries_updated_at_idx"`
}

func (StateEntry) TableName() string {
	return "state_entries"
}
