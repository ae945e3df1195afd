package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrPersistence        = errors.New("persistence failure")
	ErrLedgerDivergence   = errors.New("wallet and ledger diverged")
	ErrDuplicateReference = errors.New("pickup reference already in use")

	ErrMethodNotFound = fmt.Errorf("payout method %w", ErrNotFound)
	ErrPayoutNotFound = fmt.Errorf("payout %w", ErrNotFound)
	ErrMethodInUse    = fmt.Errorf("%w: payout method has pending or processing payouts", ErrConflict)
	ErrNotPending     = fmt.Errorf("%w: only pending payouts can be cancelled", ErrConflict)
)

type MethodRepository interface {
	ListMethods(ctx context.Context, userID string) ([]PayoutMethod, error)
	GetMethod(ctx context.Context, id string) (*PayoutMethod, error)
	// CreateMethod fails with ErrMethodLimit once the user has limit methods.
	CreateMethod(ctx context.Context, m *PayoutMethod, limit int) error
	// DeleteMethod removes the method unless an active payout references it.
	DeleteMethod(ctx context.Context, userID string, id string) error
	SetDefaultMethod(ctx context.Context, userID string, id string) error
}

type RequestRepository interface {
	CreateRequest(ctx context.Context, req *PayoutRequest) error
	GetRequest(ctx context.Context, id string) (*PayoutRequest, error)
	ListRequests(ctx context.Context, userID string, filter HistoryFilter) ([]PayoutRequest, error)
	SummarizeRequests(ctx context.Context, userID string) ([]StatusSummary, error)
	// TransitionStatus moves the request to `to` only while its status is one
	// of from. It reports false when no row matched. A nil settlementRef
	// leaves the stored reference alone; an empty one clears it.
	TransitionStatus(ctx context.Context, id string, from []Status, to Status, settlementRef *string) (bool, error)
}

var ErrMethodLimit = errors.New("payout method limit reached")

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(&PayoutMethod{}, &PayoutRequest{}); err != nil {
		return err
	}
	return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_payout_methods_single_default ON payout_methods (user_id) WHERE is_default").Error
}

// lockUser serialises method writes of one user for the rest of the
// transaction. Row locks cannot cover a user who has no rows yet.
func lockUser(tx *gorm.DB, userID string) error {
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "payout_methods:"+userID).Error; err != nil {
		return fmt.Errorf("failed to lock payout methods: %w", err)
	}
	return nil
}

func (r *GormRepository) ListMethods(ctx context.Context, userID string) ([]PayoutMethod, error) {
	var methods []PayoutMethod
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, created_at ASC").
		Find(&methods).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payout methods: %w", err)
	}
	return methods, nil
}

func (r *GormRepository) GetMethod(ctx context.Context, id string) (*PayoutMethod, error) {
	var m PayoutMethod
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMethodNotFound
		}
		return nil, fmt.Errorf("failed to get payout method: %w", err)
	}
	return &m, nil
}

func (r *GormRepository) CreateMethod(ctx context.Context, m *PayoutMethod, limit int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, m.UserID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&PayoutMethod{}).Where("user_id = ?", m.UserID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count payout methods: %w", err)
		}
		if limit > 0 && count >= int64(limit) {
			return ErrMethodLimit
		}
		if count == 0 {
			m.IsDefault = true
		}
		if m.IsDefault {
			if err := clearDefault(tx, m.UserID); err != nil {
				return err
			}
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to create payout method: %w", err)
		}
		return nil
	})
}

func (r *GormRepository) DeleteMethod(ctx context.Context, userID string, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Where("NOT EXISTS (SELECT 1 FROM payout_requests pr WHERE pr.payout_method_id = payout_methods.id AND pr.status IN ?)", ActiveStatuses).
		Delete(&PayoutMethod{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete payout method: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	m, err := r.GetMethod(ctx, id)
	if err != nil {
		return err
	}
	if m.UserID != userID {
		return ErrMethodNotFound
	}
	return ErrMethodInUse
}

func (r *GormRepository) SetDefaultMethod(ctx context.Context, userID string, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, userID); err != nil {
			return err
		}
		if err := clearDefault(tx, userID); err != nil {
			return err
		}
		result := tx.Model(&PayoutMethod{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(map[string]interface{}{
				"is_default": true,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to set default payout method: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrMethodNotFound
		}
		return nil
	})
}

func clearDefault(tx *gorm.DB, userID string) error {
	err := tx.Model(&PayoutMethod{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Updates(map[string]interface{}{
			"is_default": false,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to clear default payout method: %w", err)
	}
	return nil
}

func (r *GormRepository) CreateRequest(ctx context.Context, req *PayoutRequest) error {
	err := r.db.WithContext(ctx).Create(req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) && req.Reference != nil {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create payout request: %w", err)
	}
	return nil
}

func (r *GormRepository) GetRequest(ctx context.Context, id string) (*PayoutRequest, error) {
	var req PayoutRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, fmt.Errorf("failed to get payout request: %w", err)
	}
	return &req, nil
}

func (r *GormRepository) ListRequests(ctx context.Context, userID string, filter HistoryFilter) ([]PayoutRequest, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.MethodType != "" {
		q = q.Where("method_type = ?", filter.MethodType)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", *filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var reqs []PayoutRequest
	if err := q.Order("created_at DESC").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to list payout requests: %w", err)
	}
	return reqs, nil
}

func (r *GormRepository) SummarizeRequests(ctx context.Context, userID string) ([]StatusSummary, error) {
	var rows []struct {
		Status    Status
		Count     int64
		Amount    decimal.Decimal
		Fee       decimal.Decimal
		NetAmount decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&PayoutRequest{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(fee), 0) AS fee, COALESCE(SUM(net_amount), 0) AS net_amount").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize payout requests: %w", err)
	}

	out := make([]StatusSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, StatusSummary(row))
	}
	return out, nil
}

func (r *GormRepository) TransitionStatus(ctx context.Context, id string, from []Status, to Status, settlementRef *string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	if to == StatusCompleted {
		updates["completed_at"] = now
	}
	if settlementRef != nil {
		if *settlementRef == "" {
			updates["settlement_reference"] = gorm.Expr("NULL")
		} else {
			updates["settlement_reference"] = *settlementRef
		}
	}

	result := r.db.WithContext(ctx).
		Model(&PayoutRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update payout status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
