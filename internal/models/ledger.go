package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerTransferKind string

const (
	LedgerTransferKindTransfer     LedgerTransferKind = "TRANSFER"
	LedgerTransferKindTransferFrom LedgerTransferKind = "TRANSFER_FROM"
	LedgerTransferKindMint         LedgerTransferKind = "MINT"
)

// LedgerAccount holds the token balance of one identity
type LedgerAccount struct {
	Address   string          `gorm:"primaryKey;size:255" json:"address"`
	Balance   decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (LedgerAccount) TableName() string {
	return "ledger_accounts"
}

// LedgerAllowance is the amount Spender may move out of Owner's account
type LedgerAllowance struct {
	Owner     string          `gorm:"primaryKey;size:255" json:"owner"`
	Spender   string          `gorm:"primaryKey;size:255" json:"spender"`
	Amount    decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (LedgerAllowance) TableName() string {
	return "ledger_allowances"
}

// LedgerTransfer is an append-only record of a balance movement
type LedgerTransfer struct {
	ID        uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	Kind      LedgerTransferKind `gorm:"size:20;not null;index" json:"kind"`
	From      string             `gorm:"column:from_address;size:255;index" json:"from"`
	To        string             `gorm:"column:to_address;size:255;not null;index" json:"to"`
	Spender   string             `gorm:"size:255" json:"spender,omitempty"`
	Amount    decimal.Decimal    `gorm:"type:decimal(38,18);not null" json:"amount"`
	CreatedAt time.Time          `gorm:"not null" json:"created_at"`
}

func (LedgerTransfer) TableName() string {
	return "ledger_transfers"
}
