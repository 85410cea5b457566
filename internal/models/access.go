package models

import "time"

// WhitelistEntry marks an identity allowed to propose, deposit and vote
type WhitelistEntry struct {
	Address   string    `gorm:"primaryKey;size:255" json:"address"`
	Note      string    `gorm:"size:255" json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (WhitelistEntry) TableName() string {
	return "whitelist_entries"
}
