package governance

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the caller lacks a required role
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotWhitelisted indicates the caller is not on the whitelist
	ErrNotWhitelisted = fmt.Errorf("%w: not whitelisted", ErrUnauthorized)

	// ErrNotAdmin indicates the caller is not the governance admin
	ErrNotAdmin = fmt.Errorf("%w: not admin", ErrUnauthorized)

	// ErrNotTokenHolder indicates the caller holds no tokens
	ErrNotTokenHolder = fmt.Errorf("%w: not a token holder", ErrUnauthorized)

	// ErrPhaseViolation indicates a call made outside its time window
	ErrPhaseViolation = errors.New("phase violation")

	// ErrInvalidAmount indicates a zero, negative, over-limit or over-precise deposit
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAlreadyVoted indicates a duplicate vote
	ErrAlreadyVoted = errors.New("already voted")

	// ErrInvalidStatus indicates finalization of a denied proposal
	ErrInvalidStatus = errors.New("invalid status")

	// ErrLedgerTransferFailed indicates the token ledger rejected a transfer
	ErrLedgerTransferFailed = errors.New("ledger transfer failed")

	// ErrProposalNotFound indicates an unknown proposal ID
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrInvalidConfig indicates invalid engine parameters
	ErrInvalidConfig = errors.New("invalid governance config")
)
