package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONB stores a JSON object column
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	return json.Unmarshal(raw, j)
}

// GovernanceEvent is an outbox row for an event emitted by the engine.
// Sequence orders events across calls; PublishedAt is set once relayed.
type GovernanceEvent struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence    int64      `gorm:"not null;index" json:"sequence"`
	Type        string     `gorm:"size:50;not null;index" json:"type"`
	ProposalID  uint64     `gorm:"not null;index" json:"proposal_id"`
	Payload     JSONB      `gorm:"type:text" json:"payload"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`
}

func (GovernanceEvent) TableName() string {
	return "governance_events"
}
