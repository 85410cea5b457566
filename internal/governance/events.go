package governance

import "github.com/shopspring/decimal"

type EventType string

const (
	EventProposalCreated  EventType = "ProposalCreated"
	EventDepositMade      EventType = "DepositMade"
	EventVoteCasted       EventType = "VoteCasted"
	EventProposalApproved EventType = "ProposalApproved"
	EventProposalDenied   EventType = "ProposalDenied"
)

// Event is an observable side effect of a successful engine call
type Event interface {
	Type() EventType
	ProposalID() uint64
	Payload() map[string]interface{}
}

type ProposalCreated struct {
	ID          uint64
	Creator     string
	Description string
}

func (e ProposalCreated) Type() EventType    { return EventProposalCreated }
func (e ProposalCreated) ProposalID() uint64 { return e.ID }
func (e ProposalCreated) Payload() map[string]interface{} {
	return map[string]interface{}{
		"id":          e.ID,
		"creator":     e.Creator,
		"description": e.Description,
	}
}

type DepositMade struct {
	ID        uint64
	Depositor string
	Amount    decimal.Decimal
}

func (e DepositMade) Type() EventType    { return EventDepositMade }
func (e DepositMade) ProposalID() uint64 { return e.ID }
func (e DepositMade) Payload() map[string]interface{} {
	return map[string]interface{}{
		"id":        e.ID,
		"depositor": e.Depositor,
		"amount":    e.Amount.String(),
	}
}

type VoteCasted struct {
	ID       uint64
	Voter    string
	Weight   decimal.Decimal
	Approval bool
}

func (e VoteCasted) Type() EventType    { return EventVoteCasted }
func (e VoteCasted) ProposalID() uint64 { return e.ID }
func (e VoteCasted) Payload() map[string]interface{} {
	return map[string]interface{}{
		"id":       e.ID,
		"voter":    e.Voter,
		"weight":   e.Weight.String(),
		"approval": e.Approval,
	}
}

type ProposalApproved struct {
	ID uint64
}

func (e ProposalApproved) Type() EventType    { return EventProposalApproved }
func (e ProposalApproved) ProposalID() uint64 { return e.ID }
func (e ProposalApproved) Payload() map[string]interface{} {
	return map[string]interface{}{"id": e.ID}
}

type ProposalDenied struct {
	ID uint64
}

func (e ProposalDenied) Type() EventType    { return EventProposalDenied }
func (e ProposalDenied) ProposalID() uint64 { return e.ID }
func (e ProposalDenied) Payload() map[string]interface{} {
	return map[string]interface{}{"id": e.ID}
}
