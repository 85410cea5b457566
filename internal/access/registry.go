package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deposit-governance/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrEmptyAddress is returned when an entry has no address
var ErrEmptyAddress = errors.New("address is required")

// Registry is the whitelist of identities allowed to take part in governance
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// IsWhitelisted checks whether identity is on the whitelist
func (r *Registry) IsWhitelisted(ctx context.Context, identity string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WhitelistEntry{}).
		Where("address = ?", identity).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check whitelist: %w", err)
	}
	return count > 0, nil
}

// Add puts identity on the whitelist; adding an existing entry updates its note
func (r *Registry) Add(ctx context.Context, identity, note string) error {
	if identity == "" {
		return ErrEmptyAddress
	}

	entry := &models.WhitelistEntry{Address: identity, Note: note, CreatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{"note"}),
		}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to whitelist %s: %w", identity, err)
	}

	log.Info().Str("address", identity).Msg("[Access] address whitelisted")
	return nil
}

// Remove takes identity off the whitelist
func (r *Registry) Remove(ctx context.Context, identity string) error {
	result := r.db.WithContext(ctx).Where("address = ?", identity).Delete(&models.WhitelistEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove %s from whitelist: %w", identity, result.Error)
	}
	if result.RowsAffected > 0 {
		log.Info().Str("address", identity).Msg("[Access] address removed from whitelist")
	}
	return nil
}

// List returns every whitelist entry ordered by address
func (r *Registry) List(ctx context.Context) ([]*models.WhitelistEntry, error) {
	var entries []*models.WhitelistEntry
	if err := r.db.WithContext(ctx).Order("address ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
