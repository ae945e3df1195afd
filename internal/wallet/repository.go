package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletFrozen        = errors.New("wallet is frozen")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletExists        = errors.New("wallet already exists")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrDuplicateEntry      = errors.New("ledger entry already applied")
)

// Repository applies balance changes. ApplyDebit and ApplyCredit must update
// the wallet row and append the entry as one atomic unit, and ApplyDebit must
// guard the update so the balance can never go below zero.
type Repository interface {
	GetWallet(ctx context.Context, walletID string) (*Wallet, error)
	GetWalletByUser(ctx context.Context, userID string) (*Wallet, error)
	CreateWallet(ctx context.Context, userID string, currency string) (*Wallet, error)
	SetFrozen(ctx context.Context, walletID string, frozen bool) error
	ApplyDebit(ctx context.Context, entry *Entry) error
	ApplyCredit(ctx context.Context, entry *Entry) error
	ListEntries(ctx context.Context, walletID string, filter EntryFilter) ([]Entry, error)
	EntriesByReference(ctx context.Context, referenceType string, referenceID string) ([]Entry, error)
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Wallet{}, &Entry{})
}

func (r *GormRepository) GetWallet(ctx context.Context, walletID string) (*Wallet, error) {
	return r.first(r.db.WithContext(ctx), "id = ?", walletID)
}

func (r *GormRepository) GetWalletByUser(ctx context.Context, userID string) (*Wallet, error) {
	return r.first(r.db.WithContext(ctx), "user_id = ?", userID)
}

func (r *GormRepository) first(db *gorm.DB, query string, arg string) (*Wallet, error) {
	var w Wallet
	err := db.Where(query, arg).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

func (r *GormRepository) CreateWallet(ctx context.Context, userID string, currency string) (*Wallet, error) {
	now := time.Now()
	w := Wallet{
		ID:        uuid.New().String(),
		UserID:    userID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.WithContext(ctx).Create(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrWalletExists
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &w, nil
}

func (r *GormRepository) SetFrozen(ctx context.Context, walletID string, frozen bool) error {
	result := r.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{
			"frozen":     frozen,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update wallet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// ApplyDebit decrements the balance with a single guarded UPDATE. The row
// lock it takes is held until the ledger insert commits.
func (r *GormRepository) ApplyDebit(ctx context.Context, entry *Entry) error {
	return r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var updated []Wallet
		result := dbtx.Model(&updated).
			Clauses(clause.Returning{Columns: []clause.Column{{Name: "balance"}}}).
			Where("id = ? AND frozen = ? AND balance >= ?", entry.WalletID, false, entry.Amount).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance - ?", entry.Amount),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to debit wallet: %w", result.Error)
		}
		if result.RowsAffected == 0 || len(updated) == 0 {
			return r.debitRejection(dbtx, entry.WalletID)
		}

		entry.Direction = DirectionDebit
		entry.BalanceAfter = updated[0].Balance
		return r.appendEntry(dbtx, entry)
	})
}

func (r *GormRepository) ApplyCredit(ctx context.Context, entry *Entry) error {
	return r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var updated []Wallet
		result := dbtx.Model(&updated).
			Clauses(clause.Returning{Columns: []clause.Column{{Name: "balance"}}}).
			Where("id = ?", entry.WalletID).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance + ?", entry.Amount),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to credit wallet: %w", result.Error)
		}
		if result.RowsAffected == 0 || len(updated) == 0 {
			return ErrWalletNotFound
		}

		entry.Direction = DirectionCredit
		entry.BalanceAfter = updated[0].Balance
		return r.appendEntry(dbtx, entry)
	})
}

// debitRejection explains why the guarded update matched no row.
func (r *GormRepository) debitRejection(dbtx *gorm.DB, walletID string) error {
	w, err := r.first(dbtx, "id = ?", walletID)
	if err != nil {
		return err
	}
	if w.Frozen {
		return ErrWalletFrozen
	}
	return ErrInsufficientBalance
}

func (r *GormRepository) appendEntry(dbtx *gorm.DB, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now()
	if err := dbtx.Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (r *GormRepository) ListEntries(ctx context.Context, walletID string, filter EntryFilter) ([]Entry, error) {
	q := r.db.WithContext(ctx).Where("wallet_id = ?", walletID)
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var entries []Entry
	if err := q.Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

func (r *GormRepository) EntriesByReference(ctx context.Context, referenceType string, referenceID string) ([]Entry, error) {
	var entries []Entry
	err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}
