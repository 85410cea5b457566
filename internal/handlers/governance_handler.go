package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"deposit-governance/internal/auth"
	"deposit-governance/internal/governance"
	"deposit-governance/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ProposalHistory reads the committed events and votes of a proposal
type ProposalHistory interface {
	GetEventsByProposal(ctx context.Context, id uint64) ([]*models.GovernanceEvent, error)
	GetProposalVotes(ctx context.Context, id uint64) ([]*models.ProposalVote, error)
}

type GovernanceHandler struct {
	engine  *governance.Engine
	history ProposalHistory
}

// NewGovernanceHandler creates a new GovernanceHandler. history may be nil.
func NewGovernanceHandler(engine *governance.Engine, history ProposalHistory) *GovernanceHandler {
	return &GovernanceHandler{
		engine:  engine,
		history: history,
	}
}

type windowView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type proposalView struct {
	*models.Proposal
	Phase         governance.Phase `json:"phase"`
	DepositWindow windowView       `json:"deposit_window"`
	VotingWindow  windowView       `json:"voting_window"`
}

func (h *GovernanceHandler) view(p *models.Proposal, now time.Time) proposalView {
	params := h.engine.Params()
	deposit := governance.DepositWindow(p, params)
	voting := governance.VotingWindow(p, params)
	return proposalView{
		Proposal:      p,
		Phase:         governance.PhaseAt(p, params, now),
		DepositWindow: windowView{Start: deposit.Start, End: deposit.End},
		VotingWindow:  windowView{Start: voting.Start, End: voting.End},
	}
}

// GetGovernance returns the fixed governance parameters
// GET /api/governance
func (h *GovernanceHandler) GetGovernance(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"admin":          h.engine.Admin(),
		"treasury":       h.engine.Treasury(),
		"burn_address":   h.engine.BurnAddress(),
		"deposit_limit":  h.engine.DepositLimit(),
		"deposit_period": h.engine.DepositPeriod().String(),
		"voting_period":  h.engine.VotingPeriod().String(),
		"proposal_count": h.engine.ProposalCount(),
		"veto_holders":   h.engine.VetoHolders(),
	})
}

// ListProposals lists proposals newest first
// GET /api/proposals
func (h *GovernanceHandler) ListProposals(c *gin.Context) {
	limit := 20
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	all := lo.Reverse(h.engine.Proposals())
	page := lo.Subset(all, offset, uint(limit))

	now := h.engine.Now()
	c.JSON(http.StatusOK, gin.H{
		"proposals": lo.Map(page, func(p *models.Proposal, _ int) proposalView {
			return h.view(p, now)
		}),
		"total":  len(all),
		"limit":  limit,
		"offset": offset,
	})
}

// GetProposal retrieves a proposal with its current phase
// GET /api/proposals/:id
func (h *GovernanceHandler) GetProposal(c *gin.Context) {
	id, ok := parseProposalID(c)
	if !ok {
		return
	}

	proposal, err := h.engine.Proposal(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.view(proposal, h.engine.Now()))
}

// GetProposalEvents retrieves the committed event history of a proposal
// GET /api/proposals/:id/events
func (h *GovernanceHandler) GetProposalEvents(c *gin.Context) {
	id, ok := parseProposalID(c)
	if !ok {
		return
	}
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "event history not available"})
		return
	}
	if _, err := h.engine.Proposal(id); err != nil {
		respondError(c, err)
		return
	}

	events, err := h.history.GetEventsByProposal(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Uint64("proposal_id", id).Msg("[GovernanceHandler] failed to read events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GetProposalVotes lists the votes cast on a proposal in cast order
// GET /api/proposals/:id/votes
func (h *GovernanceHandler) GetProposalVotes(c *gin.Context) {
	id, ok := parseProposalID(c)
	if !ok {
		return
	}
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "vote history not available"})
		return
	}
	if _, err := h.engine.Proposal(id); err != nil {
		respondError(c, err)
		return
	}

	votes, err := h.history.GetProposalVotes(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Uint64("proposal_id", id).Msg("[GovernanceHandler] failed to read votes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get votes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"votes": votes})
}

// GetAccess reports whitelist and veto-holder membership
// GET /api/access/:address
func (h *GovernanceHandler) GetAccess(c *gin.Context) {
	address := c.Param("address")

	whitelisted, err := h.engine.IsWhitelisted(c.Request.Context(), address)
	if err != nil {
		log.Error().Err(err).Str("address", address).Msg("[GovernanceHandler] whitelist lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check whitelist"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":     address,
		"whitelisted": whitelisted,
		"veto_holder": h.engine.IsVetoHolder(address),
		"is_admin":    address == h.engine.Admin(),
	})
}

// CreateProposal submits a new proposal as the caller
// POST /api/proposals
func (h *GovernanceHandler) CreateProposal(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	var req models.CreateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.engine.CreateProposal(c.Request.Context(), caller, *req.Description)
	if err != nil {
		respondError(c, err)
		return
	}

	proposal, err := h.engine.Proposal(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.view(proposal, h.engine.Now()))
}

// Deposit funds a proposal from the caller's tokens
// POST /api/proposals/:id/deposit
func (h *GovernanceHandler) Deposit(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := parseProposalID(c)
	if !ok {
		return
	}

	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.DepositForProposal(c.Request.Context(), caller, id, req.Amount); err != nil {
		respondError(c, err)
		return
	}

	h.respondProposal(c, id)
}

// Vote casts the caller's token-weighted vote
// POST /api/proposals/:id/vote
func (h *GovernanceHandler) Vote(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := parseProposalID(c)
	if !ok {
		return
	}

	var req models.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.Vote(c.Request.Context(), caller, id, *req.Approval); err != nil {
		respondError(c, err)
		return
	}

	h.respondProposal(c, id)
}

// Finalize settles a proposal. Admin only.
// POST /api/proposals/:id/finalize
func (h *GovernanceHandler) Finalize(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := parseProposalID(c)
	if !ok {
		return
	}

	if err := h.engine.FinalizeProposal(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}

	h.respondProposal(c, id)
}

// SetVetoHolder grants or revokes the veto-holder role. Admin only.
// PUT /api/admin/veto-holders/:address
func (h *GovernanceHandler) SetVetoHolder(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	var req models.VetoHolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	holder := c.Param("address")
	if err := h.engine.SetVetoHolder(c.Request.Context(), caller, holder, *req.Enabled); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": holder,
		"enabled": h.engine.IsVetoHolder(holder),
	})
}

func (h *GovernanceHandler) respondProposal(c *gin.Context, id uint64) {
	proposal, err := h.engine.Proposal(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(proposal, h.engine.Now()))
}

func callerAddress(c *gin.Context) (string, bool) {
	caller, ok := auth.GetAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return caller, ok
}

func parseProposalID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
		return 0, false
	}
	return id, true
}

// respondError maps engine errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, governance.ErrUnauthorized):
		status, code = http.StatusForbidden, "unauthorized"
	case errors.Is(err, governance.ErrProposalNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, governance.ErrPhaseViolation):
		status, code = http.StatusConflict, "phase_violation"
	case errors.Is(err, governance.ErrInvalidAmount):
		status, code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, governance.ErrAlreadyVoted):
		status, code = http.StatusConflict, "already_voted"
	case errors.Is(err, governance.ErrInvalidStatus):
		status, code = http.StatusConflict, "invalid_status"
	case errors.Is(err, governance.ErrLedgerTransferFailed):
		status, code = http.StatusBadGateway, "ledger_transfer_failed"
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("[GovernanceHandler] request failed")
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}

	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
