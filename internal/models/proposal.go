package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "PENDING"
	ProposalStatusApproved ProposalStatus = "APPROVED"
	ProposalStatusDenied   ProposalStatus = "DENIED"
)

// Proposal is a governance proposal and its running tallies.
// Votes is loaded from proposal_votes and is not a column.
type Proposal struct {
	ID              uint64                     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Creator         string                     `gorm:"size:255;not null;index" json:"creator"`
	Description     string                     `gorm:"type:text" json:"description"`
	DepositStartsAt time.Time                  `gorm:"not null" json:"deposit_starts_at"`
	DepositTotal    decimal.Decimal            `gorm:"type:decimal(38,18);not null" json:"deposit_total"`
	Status          ProposalStatus             `gorm:"size:20;not null;index" json:"status"`
	ApprovalVotes   decimal.Decimal            `gorm:"type:decimal(38,18);not null" json:"approval_votes"`
	DenialVotes     decimal.Decimal            `gorm:"type:decimal(38,18);not null" json:"denial_votes"`
	Votes           map[string]decimal.Decimal `gorm:"-" json:"votes"`
	FinalizedAt     *time.Time                 `json:"finalized_at,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

func (Proposal) TableName() string {
	return "proposals"
}

// Clone returns a deep copy, including the vote map.
func (p *Proposal) Clone() *Proposal {
	cp := *p
	cp.Votes = make(map[string]decimal.Decimal, len(p.Votes))
	for voter, weight := range p.Votes {
		cp.Votes[voter] = weight
	}
	if p.FinalizedAt != nil {
		t := *p.FinalizedAt
		cp.FinalizedAt = &t
	}
	return &cp
}

// ProposalVote records the weight a voter cast on a proposal
type ProposalVote struct {
	ProposalID uint64          `gorm:"primaryKey;autoIncrement:false" json:"proposal_id"`
	Voter      string          `gorm:"primaryKey;size:255" json:"voter"`
	Weight     decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"weight"`
	Approval   bool            `gorm:"not null" json:"approval"`
	CastAt     time.Time       `gorm:"not null" json:"cast_at"`
}

func (ProposalVote) TableName() string {
	return "proposal_votes"
}

// VetoHolder tracks veto-holder membership
type VetoHolder struct {
	Address   string    `gorm:"primaryKey;size:255" json:"address"`
	Enabled   bool      `gorm:"not null" json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (VetoHolder) TableName() string {
	return "veto_holders"
}

// CreateProposalRequest is the body of POST /api/proposals. The description
// must be present but may be empty.
type CreateProposalRequest struct {
	Description *string `json:"description" binding:"required"`
}

// DepositRequest is the body of POST /api/proposals/:id/deposit
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// VoteRequest is the body of POST /api/proposals/:id/vote
type VoteRequest struct {
	Approval *bool `json:"approval" binding:"required"`
}

// VetoHolderRequest is the body of PUT /api/admin/veto-holders/:address
type VetoHolderRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
