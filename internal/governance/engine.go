package governance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"deposit-governance/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits stored for token amounts
const AmountScale = 18

// Params are the fixed governance parameters of an engine
type Params struct {
	Admin         string
	Treasury      string
	BurnAddress   string
	DepositLimit  decimal.Decimal
	DepositPeriod time.Duration
	VotingPeriod  time.Duration
}

// Validate checks that the parameters describe a usable engine
func (p Params) Validate() error {
	switch {
	case p.Admin == "":
		return fmt.Errorf("%w: admin is required", ErrInvalidConfig)
	case p.Treasury == "":
		return fmt.Errorf("%w: treasury is required", ErrInvalidConfig)
	case p.BurnAddress == "":
		return fmt.Errorf("%w: burn address is required", ErrInvalidConfig)
	case !p.DepositLimit.IsPositive():
		return fmt.Errorf("%w: deposit limit must be positive", ErrInvalidConfig)
	case p.DepositPeriod <= 0:
		return fmt.Errorf("%w: deposit period must be positive", ErrInvalidConfig)
	case p.VotingPeriod <= 0:
		return fmt.Errorf("%w: voting period must be positive", ErrInvalidConfig)
	}
	return nil
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the system clock
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithEventHook registers a callback invoked with each event after it is committed
func WithEventHook(hook func(Event)) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hook)
	}
}

// Engine is the proposal lifecycle state machine. Every call is serialized.
type Engine struct {
	params Params
	ledger TokenLedger
	access AccessRegistry
	store  Store
	clock  Clock
	hooks  []func(Event)

	mu            sync.RWMutex
	proposalCount uint64
	proposals     map[uint64]*models.Proposal
	vetoHolders   map[string]struct{}
}

// NewEngine validates params and restores state from the store
func NewEngine(
	ctx context.Context,
	params Params,
	ledger TokenLedger,
	access AccessRegistry,
	store Store,
	opts ...Option,
) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil || access == nil || store == nil {
		return nil, fmt.Errorf("%w: ledger, access registry and store are required", ErrInvalidConfig)
	}

	e := &Engine{
		params:      params,
		ledger:      ledger,
		access:      access,
		store:       store,
		clock:       SystemClock{},
		proposals:   make(map[uint64]*models.Proposal),
		vetoHolders: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	snapshot, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load governance state: %w", err)
	}
	for _, p := range snapshot.Proposals {
		if p.Votes == nil {
			p.Votes = make(map[string]decimal.Decimal)
		}
		e.proposals[p.ID] = p
		if p.ID > e.proposalCount {
			e.proposalCount = p.ID
		}
	}
	for _, holder := range snapshot.VetoHolders {
		e.vetoHolders[holder] = struct{}{}
	}

	log.Info().
		Uint64("proposals", e.proposalCount).
		Int("veto_holders", len(e.vetoHolders)).
		Msg("[Governance] engine state restored")

	return e, nil
}

// CreateProposal registers a new pending proposal whose deposit window opens now
func (e *Engine) CreateProposal(ctx context.Context, caller, description string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	if err := e.requireWhitelisted(ctx, caller); err != nil {
		return 0, err
	}

	id := e.proposalCount + 1
	proposal := &models.Proposal{
		ID:              id,
		Creator:         caller,
		Description:     description,
		DepositStartsAt: now,
		DepositTotal:    decimal.Zero,
		Status:          models.ProposalStatusPending,
		ApprovalVotes:   decimal.Zero,
		DenialVotes:     decimal.Zero,
		Votes:           make(map[string]decimal.Decimal),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	events := []Event{ProposalCreated{ID: id, Creator: caller, Description: description}}

	if err := e.store.Commit(ctx, &Change{Proposal: proposal, Events: events, At: now}); err != nil {
		return 0, fmt.Errorf("failed to persist proposal %d: %w", id, err)
	}

	e.proposalCount = id
	e.proposals[id] = proposal
	e.emit(events)

	log.Info().Uint64("proposal_id", id).Str("creator", caller).Msg("[Governance] proposal created")
	return id, nil
}

// DepositForProposal moves amount from caller into the treasury and credits the proposal.
// Reaching the deposit limit clamps the total and approves the proposal.
func (e *Engine) DepositForProposal(ctx context.Context, caller string, id uint64, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	if err := e.requireWhitelisted(ctx, caller); err != nil {
		return err
	}

	proposal, err := e.lookup(id)
	if err != nil {
		return err
	}

	window := DepositWindow(proposal, e.params)
	if !window.Contains(now) {
		return fmt.Errorf("%w: proposal %d accepts deposits in %s", ErrPhaseViolation, id, window)
	}

	if !amount.IsPositive() || amount.GreaterThan(e.params.DepositLimit) {
		return fmt.Errorf("%w: %s must be in (0, %s]", ErrInvalidAmount, amount, e.params.DepositLimit)
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount, AmountScale)
	}

	if err := e.ledger.TransferFrom(ctx, caller, e.params.Treasury, amount); err != nil {
		return fmt.Errorf("%w: deposit of %s from %s: %w", ErrLedgerTransferFailed, amount, caller, err)
	}

	next := proposal.Clone()
	next.DepositTotal = next.DepositTotal.Add(amount)
	if next.DepositTotal.GreaterThanOrEqual(e.params.DepositLimit) {
		next.DepositTotal = e.params.DepositLimit
		next.Status = models.ProposalStatusApproved
	}
	next.UpdatedAt = now

	events := []Event{DepositMade{ID: id, Depositor: caller, Amount: amount}}

	if err := e.store.Commit(ctx, &Change{Proposal: next, Events: events, At: now}); err != nil {
		if refundErr := e.ledger.Transfer(ctx, caller, amount); refundErr != nil {
			log.Error().
				Err(refundErr).
				Uint64("proposal_id", id).
				Str("depositor", caller).
				Str("amount", amount.String()).
				Msg("[Governance] deposit refund failed after persistence error")
			return fmt.Errorf("failed to persist deposit on proposal %d: %w", id, errors.Join(err, refundErr))
		}
		return fmt.Errorf("failed to persist deposit on proposal %d, deposit refunded: %w", id, err)
	}

	e.proposals[id] = next
	e.emit(events)

	log.Info().
		Uint64("proposal_id", id).
		Str("depositor", caller).
		Str("amount", amount.String()).
		Str("deposit_total", next.DepositTotal.String()).
		Str("status", string(next.Status)).
		Msg("[Governance] deposit made")
	return nil
}

// Vote casts the caller's current token balance for or against a proposal
func (e *Engine) Vote(ctx context.Context, caller string, id uint64, approval bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	weight, err := e.ledger.BalanceOf(ctx, caller)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", caller, err)
	}
	if !weight.IsPositive() {
		return fmt.Errorf("%w: %s", ErrNotTokenHolder, caller)
	}

	if err := e.requireWhitelisted(ctx, caller); err != nil {
		return err
	}

	proposal, err := e.lookup(id)
	if err != nil {
		return err
	}

	window := VotingWindow(proposal, e.params)
	if !window.Contains(now) {
		return fmt.Errorf("%w: proposal %d accepts votes in %s", ErrPhaseViolation, id, window)
	}

	// A recorded weight of zero reads as "not voted".
	if prior := proposal.Votes[caller]; !prior.IsZero() {
		return fmt.Errorf("%w: %s on proposal %d", ErrAlreadyVoted, caller, id)
	}

	next := proposal.Clone()
	if approval {
		next.ApprovalVotes = next.ApprovalVotes.Add(weight)
	} else {
		next.DenialVotes = next.DenialVotes.Add(weight)
	}
	next.Votes[caller] = weight
	next.UpdatedAt = now

	vote := &models.ProposalVote{
		ProposalID: id,
		Voter:      caller,
		Weight:     weight,
		Approval:   approval,
		CastAt:     now,
	}
	events := []Event{VoteCasted{ID: id, Voter: caller, Weight: weight, Approval: approval}}

	if err := e.store.Commit(ctx, &Change{Proposal: next, Vote: vote, Events: events, At: now}); err != nil {
		return fmt.Errorf("failed to persist vote on proposal %d: %w", id, err)
	}

	e.proposals[id] = next
	e.emit(events)

	log.Info().
		Uint64("proposal_id", id).
		Str("voter", caller).
		Str("weight", weight.String()).
		Bool("approval", approval).
		Msg("[Governance] vote cast")
	return nil
}

// FinalizeProposal settles a proposal from its vote tally. Approval must strictly
// exceed denial; otherwise the proposal is denied and its deposit is forfeited.
// Calls may repeat while the voting window is open.
func (e *Engine) FinalizeProposal(ctx context.Context, caller string, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	if caller != e.params.Admin {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller)
	}

	proposal, err := e.lookup(id)
	if err != nil {
		return err
	}

	window := VotingWindow(proposal, e.params)
	if !window.Contains(now) {
		return fmt.Errorf("%w: proposal %d can be finalized in %s", ErrPhaseViolation, id, window)
	}

	if proposal.Status == models.ProposalStatusDenied {
		return fmt.Errorf("%w: proposal %d is already denied", ErrInvalidStatus, id)
	}

	next := proposal.Clone()
	next.FinalizedAt = &now
	next.UpdatedAt = now

	if proposal.ApprovalVotes.GreaterThan(proposal.DenialVotes) {
		next.Status = models.ProposalStatusApproved
		events := []Event{ProposalApproved{ID: id}}
		if err := e.store.Commit(ctx, &Change{Proposal: next, Events: events, At: now}); err != nil {
			return fmt.Errorf("failed to persist finalization of proposal %d: %w", id, err)
		}
		e.finalized(next, events)
		return nil
	}

	next.Status = models.ProposalStatusDenied
	if err := e.forfeit(ctx, proposal, next, now); err != nil {
		return err
	}

	// The denial and the burn are durable; only the outbox row is left
	events := []Event{ProposalDenied{ID: id}}
	if err := e.store.Commit(ctx, &Change{Events: events, At: now}); err != nil {
		e.proposals[id] = next
		log.Error().
			Err(err).
			Uint64("proposal_id", id).
			Msg("[Governance] proposal denied but ProposalDenied event was not recorded")
		return fmt.Errorf("proposal %d denied, failed to record event: %w", id, err)
	}
	e.finalized(next, events)
	return nil
}

// forfeit persists the denial and then burns the deposit. A burn failure
// restores the previous proposal so the store never holds a denial without a burn.
func (e *Engine) forfeit(ctx context.Context, previous, next *models.Proposal, now time.Time) error {
	id := next.ID

	if err := e.store.Commit(ctx, &Change{Proposal: next, At: now}); err != nil {
		return fmt.Errorf("failed to persist finalization of proposal %d: %w", id, err)
	}

	if err := e.ledger.Transfer(ctx, e.params.BurnAddress, previous.DepositTotal); err != nil {
		transferErr := fmt.Errorf("%w: forfeiture of %s on proposal %d: %w",
			ErrLedgerTransferFailed, previous.DepositTotal, id, err)

		if revertErr := e.store.Commit(ctx, &Change{Proposal: previous.Clone(), At: now}); revertErr != nil {
			log.Error().
				Err(revertErr).
				Uint64("proposal_id", id).
				Str("deposit_total", previous.DepositTotal.String()).
				Msg("[Governance] denial persisted but deposit was not forfeited")
			return errors.Join(transferErr, revertErr)
		}
		return transferErr
	}
	return nil
}

func (e *Engine) finalized(next *models.Proposal, events []Event) {
	e.proposals[next.ID] = next
	e.emit(events)

	log.Info().
		Uint64("proposal_id", next.ID).
		Str("status", string(next.Status)).
		Str("approval_votes", next.ApprovalVotes.String()).
		Str("denial_votes", next.DenialVotes.String()).
		Msg("[Governance] proposal finalized")
}

// SetVetoHolder grants or revokes the veto-holder role. No transition consults it.
func (e *Engine) SetVetoHolder(ctx context.Context, caller, holder string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	if caller != e.params.Admin {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller)
	}

	change := &Change{
		VetoHolder: &models.VetoHolder{Address: holder, Enabled: enabled, UpdatedAt: now},
		At:         now,
	}
	if err := e.store.Commit(ctx, change); err != nil {
		return fmt.Errorf("failed to persist veto holder %s: %w", holder, err)
	}

	if enabled {
		e.vetoHolders[holder] = struct{}{}
	} else {
		delete(e.vetoHolders, holder)
	}

	log.Info().Str("holder", holder).Bool("enabled", enabled).Msg("[Governance] veto holder updated")
	return nil
}

// Admin returns the admin identity
func (e *Engine) Admin() string {
	return e.params.Admin
}

// Treasury returns the identity that holds deposits
func (e *Engine) Treasury() string {
	return e.params.Treasury
}

// BurnAddress returns the forfeiture destination
func (e *Engine) BurnAddress() string {
	return e.params.BurnAddress
}

// Ledger returns the token ledger the engine settles against
func (e *Engine) Ledger() TokenLedger {
	return e.ledger
}

func (e *Engine) DepositLimit() decimal.Decimal {
	return e.params.DepositLimit
}

func (e *Engine) DepositPeriod() time.Duration {
	return e.params.DepositPeriod
}

func (e *Engine) VotingPeriod() time.Duration {
	return e.params.VotingPeriod
}

// Params returns a copy of the engine parameters
func (e *Engine) Params() Params {
	return e.params
}

// ProposalCount returns the highest proposal ID assigned so far
func (e *Engine) ProposalCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.proposalCount
}

// Proposal returns a copy of a proposal
func (e *Engine) Proposal(id uint64) (*models.Proposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	proposal, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return proposal.Clone(), nil
}

// Proposals returns copies of all proposals ordered by ID
func (e *Engine) Proposals() []*models.Proposal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := lo.Keys(e.proposals)
	slices.Sort(ids)
	return lo.Map(ids, func(id uint64, _ int) *models.Proposal {
		return e.proposals[id].Clone()
	})
}

// Phase reports where a proposal sits in its lifecycle right now
func (e *Engine) Phase(id uint64) (Phase, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	proposal, err := e.lookup(id)
	if err != nil {
		return "", err
	}
	return PhaseAt(proposal, e.params, e.clock.Now()), nil
}

// Now returns the engine clock's current time
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

func (e *Engine) IsVetoHolder(identity string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.vetoHolders[identity]
	return ok
}

// VetoHolders returns the veto holders in sorted order
func (e *Engine) VetoHolders() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	holders := lo.Keys(e.vetoHolders)
	slices.Sort(holders)
	return holders
}

func (e *Engine) IsWhitelisted(ctx context.Context, identity string) (bool, error) {
	return e.access.IsWhitelisted(ctx, identity)
}

func (e *Engine) requireWhitelisted(ctx context.Context, caller string) error {
	ok, err := e.access.IsWhitelisted(ctx, caller)
	if err != nil {
		return fmt.Errorf("failed to check whitelist for %s: %w", caller, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, caller)
	}
	return nil
}

func (e *Engine) lookup(id uint64) (*models.Proposal, error) {
	proposal, ok := e.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	return proposal, nil
}

func (e *Engine) emit(events []Event) {
	for _, ev := range events {
		for _, hook := range e.hooks {
			hook(ev)
		}
	}
}
