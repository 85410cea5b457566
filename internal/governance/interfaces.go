package governance

import (
	"context"
	"time"

	"deposit-governance/internal/models"

	"github.com/shopspring/decimal"
)

// TokenLedger is the token balance and transfer service the engine settles against.
// Transfer moves tokens out of the engine treasury.
type TokenLedger interface {
	BalanceOf(ctx context.Context, identity string) (decimal.Decimal, error)
	TransferFrom(ctx context.Context, from, to string, amount decimal.Decimal) error
	Transfer(ctx context.Context, to string, amount decimal.Decimal) error
}

// AccessRegistry answers whitelist membership
type AccessRegistry interface {
	IsWhitelisted(ctx context.Context, identity string) (bool, error)
}

// Clock supplies the current time, read once per engine call
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Snapshot is the persisted engine state loaded at startup
type Snapshot struct {
	Proposals   []*models.Proposal
	VetoHolders []string
}

// Change is the unit of persistence for one engine call.
// A store must apply every part of it or none.
type Change struct {
	Proposal   *models.Proposal
	Vote       *models.ProposalVote
	VetoHolder *models.VetoHolder
	Events     []Event
	At         time.Time
}

// Store persists engine state
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Commit(ctx context.Context, change *Change) error
}
