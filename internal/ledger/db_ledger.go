package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deposit-governance/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInsufficientBalance represents insufficient token balance error
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance indicates the spender was not approved for the amount
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrNegativeAmount indicates a negative transfer amount
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// DBLedger is a token ledger kept in the service database.
// The treasury is both the source of Transfer and the spender of TransferFrom.
type DBLedger struct {
	db       *gorm.DB
	treasury string
}

func NewDBLedger(db *gorm.DB, treasury string) *DBLedger {
	return &DBLedger{db: db, treasury: treasury}
}

// BalanceOf returns the balance of identity; unknown accounts hold zero
func (l *DBLedger) BalanceOf(ctx context.Context, identity string) (decimal.Decimal, error) {
	var account models.LedgerAccount
	err := l.db.WithContext(ctx).Where("address = ?", identity).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return account.Balance, nil
}

// TransferFrom moves amount from one account to another, consuming the
// allowance from granted to the treasury
func (l *DBLedger) TransferFrom(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.LedgerAllowance{}).
			Where("owner = ? AND spender = ? AND amount >= ?", from, l.treasury, amount).
			Updates(map[string]interface{}{
				"amount":     gorm.Expr("amount - ?", amount),
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to consume allowance: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s has not approved %s for %s", ErrInsufficientAllowance, from, l.treasury, amount)
		}

		return l.move(tx, models.LedgerTransferKindTransferFrom, from, to, l.treasury, amount)
	})
}

// Transfer moves amount out of the treasury
func (l *DBLedger) Transfer(ctx context.Context, to string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.move(tx, models.LedgerTransferKindTransfer, l.treasury, to, "", amount)
	})
}

// Approve sets the amount spender may move out of owner's account
func (l *DBLedger) Approve(ctx context.Context, owner, spender string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}

	allowance := &models.LedgerAllowance{
		Owner:     owner,
		Spender:   spender,
		Amount:    amount,
		UpdatedAt: time.Now().UTC(),
	}
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(allowance).Error
}

// Allowance returns the amount spender may still move out of owner's account
func (l *DBLedger) Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error) {
	var allowance models.LedgerAllowance
	err := l.db.WithContext(ctx).
		Where("owner = ? AND spender = ?", owner, spender).
		First(&allowance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return allowance.Amount, nil
}

// SeedBalance credits an account from outside the ledger. Used by genesis seeding only.
func (l *DBLedger) SeedBalance(ctx context.Context, to string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := credit(tx, to, amount); err != nil {
			return err
		}
		return record(tx, models.LedgerTransferKindMint, "", to, "", amount)
	})
}

// OpenAccount creates an empty account if none exists yet
func (l *DBLedger) OpenAccount(ctx context.Context, address string) error {
	now := time.Now().UTC()
	account := &models.LedgerAccount{Address: address, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(account).Error
}

// GetTransfers retrieves the most recent transfers touching an address
func (l *DBLedger) GetTransfers(ctx context.Context, address string, limit int) ([]*models.LedgerTransfer, error) {
	var transfers []*models.LedgerTransfer
	err := l.db.WithContext(ctx).
		Where("from_address = ? OR to_address = ?", address, address).
		Order("created_at DESC").
		Limit(limit).
		Find(&transfers).Error
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

func (l *DBLedger) move(tx *gorm.DB, kind models.LedgerTransferKind, from, to, spender string, amount decimal.Decimal) error {
	result := tx.Model(&models.LedgerAccount{}).
		Where("address = ? AND balance >= ?", from, amount).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to debit %s: %w", from, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s cannot cover %s", ErrInsufficientBalance, from, amount)
	}

	if err := credit(tx, to, amount); err != nil {
		return err
	}
	return record(tx, kind, from, to, spender, amount)
}

func credit(tx *gorm.DB, to string, amount decimal.Decimal) error {
	now := time.Now().UTC()
	account := &models.LedgerAccount{Address: to, Balance: amount, CreatedAt: now, UpdatedAt: now}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("ledger_accounts.balance + excluded.balance"),
			"updated_at": now,
		}),
	}).Create(account).Error
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}
	return nil
}

func record(tx *gorm.DB, kind models.LedgerTransferKind, from, to, spender string, amount decimal.Decimal) error {
	transfer := &models.LedgerTransfer{
		ID:        uuid.New(),
		Kind:      kind,
		From:      from,
		To:        to,
		Spender:   spender,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(transfer).Error; err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	return nil
}
