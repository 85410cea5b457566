package repository

import (
	"context"
	"fmt"
	"time"

	"deposit-governance/internal/governance"
	"deposit-governance/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists governance state and the event outbox
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Load reads every proposal with its votes and the enabled veto holders
func (r *Repository) Load(ctx context.Context) (*governance.Snapshot, error) {
	var proposals []*models.Proposal
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&proposals).Error; err != nil {
		return nil, fmt.Errorf("failed to load proposals: %w", err)
	}

	var votes []*models.ProposalVote
	if err := r.db.WithContext(ctx).Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("failed to load votes: %w", err)
	}
	attachVotes(proposals, votes)

	var holders []string
	err := r.db.WithContext(ctx).
		Model(&models.VetoHolder{}).
		Where("enabled = ?", true).
		Order("address ASC").
		Pluck("address", &holders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load veto holders: %w", err)
	}

	return &governance.Snapshot{Proposals: proposals, VetoHolders: holders}, nil
}

// Commit applies one engine change and appends its events to the outbox in a single transaction
func (r *Repository) Commit(ctx context.Context, change *governance.Change) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if change.Proposal != nil {
			err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(change.Proposal).Error
			if err != nil {
				return fmt.Errorf("failed to save proposal %d: %w", change.Proposal.ID, err)
			}
		}

		if change.Vote != nil {
			if err := tx.Create(change.Vote).Error; err != nil {
				return fmt.Errorf("failed to save vote: %w", err)
			}
		}

		if change.VetoHolder != nil {
			err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(change.VetoHolder).Error
			if err != nil {
				return fmt.Errorf("failed to save veto holder: %w", err)
			}
		}

		if len(change.Events) == 0 {
			return nil
		}

		var lastSequence int64
		err := tx.Model(&models.GovernanceEvent{}).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&lastSequence).Error
		if err != nil {
			return fmt.Errorf("failed to read event sequence: %w", err)
		}

		rows := make([]*models.GovernanceEvent, 0, len(change.Events))
		for i, ev := range change.Events {
			rows = append(rows, &models.GovernanceEvent{
				ID:         uuid.New(),
				Sequence:   lastSequence + int64(i) + 1,
				Type:       string(ev.Type()),
				ProposalID: ev.ProposalID(),
				Payload:    models.JSONB(ev.Payload()),
				CreatedAt:  change.At,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to append events: %w", err)
		}
		return nil
	})
}

// GetProposal retrieves one proposal with its votes
func (r *Repository) GetProposal(ctx context.Context, id uint64) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&proposal).Error; err != nil {
		return nil, err
	}

	var votes []*models.ProposalVote
	if err := r.db.WithContext(ctx).Where("proposal_id = ?", id).Find(&votes).Error; err != nil {
		return nil, err
	}
	attachVotes([]*models.Proposal{&proposal}, votes)

	return &proposal, nil
}

// ListProposals retrieves a page of proposals, newest first, and the total count
func (r *Repository) ListProposals(ctx context.Context, limit, offset int) ([]*models.Proposal, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Proposal{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var proposals []*models.Proposal
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&proposals).Error
	if err != nil {
		return nil, 0, err
	}

	return proposals, total, nil
}

// GetProposalVotes retrieves the votes cast on a proposal in cast order
func (r *Repository) GetProposalVotes(ctx context.Context, id uint64) ([]*models.ProposalVote, error) {
	var votes []*models.ProposalVote
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", id).
		Order("cast_at ASC").
		Find(&votes).Error
	if err != nil {
		return nil, err
	}
	return votes, nil
}

// GetUnpublishedEvents retrieves outbox events not yet relayed, oldest first
func (r *Repository) GetUnpublishedEvents(ctx context.Context, limit int) ([]*models.GovernanceEvent, error) {
	var events []*models.GovernanceEvent
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("sequence ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// MarkEventsPublished stamps relayed outbox events
func (r *Repository) MarkEventsPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.GovernanceEvent{}).
		Where("id IN ?", ids).
		Update("published_at", at).Error
}

// GetEventsByProposal retrieves the event history of a proposal
func (r *Repository) GetEventsByProposal(ctx context.Context, id uint64) ([]*models.GovernanceEvent, error) {
	var events []*models.GovernanceEvent
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", id).
		Order("sequence ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func attachVotes(proposals []*models.Proposal, votes []*models.ProposalVote) {
	byID := make(map[uint64]*models.Proposal, len(proposals))
	for _, p := range proposals {
		p.Votes = make(map[string]decimal.Decimal)
		byID[p.ID] = p
	}
	for _, v := range votes {
		if p, ok := byID[v.ProposalID]; ok {
			p.Votes[v.Voter] = v.Weight
		}
	}
}
