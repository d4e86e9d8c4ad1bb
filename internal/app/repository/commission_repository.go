package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vendimia/refledger/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrCommissionNotFound signals that no commission exists for the
	// requested affiliate×sale pair.
	ErrCommissionNotFound = errors.New("commission not found")
)

// CommissionRepository defines the data access contract for pending and paid
// commissions.
type CommissionRepository interface {
	// CreateIfAbsent inserts the commission unless one already exists for
	// the same (affiliate_id, sale_id); it reports whether a row was created.
	CreateIfAbsent(ctx context.Context, commission *model.Commission) (bool, error)
	GetBySale(ctx context.Context, affiliateID, saleID string) (*model.Commission, error)
	// ListPendingForUpdate locks every pending commission of the affiliate
	// for the duration of the surrounding transaction.
	ListPendingForUpdate(ctx context.Context, affiliateID string) ([]model.Commission, error)
	// MarkPaidByIDs flips exactly the listed pending commissions to paid.
	// Restricting the update to previously locked ids keeps a sale confirmed
	// mid-settlement out of the paid set; the caller compares the affected
	// row count against len(ids).
	MarkPaidByIDs(ctx context.Context, ids []string, settledAt time.Time) (int64, error)
	ListByAffiliate(ctx context.Context, affiliateID string, limit int) ([]model.Commission, error)
	// ListAffiliatesWithPendingAtLeast returns affiliates whose pending sum
	// has crossed min; feeds the opportunistic settlement sweep.
	ListAffiliatesWithPendingAtLeast(ctx context.Context, min decimal.Decimal) ([]string, error)
}

type commissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository returns a GORM-backed CommissionRepository.
func NewCommissionRepository(db *gorm.DB) CommissionRepository {
	return &commissionRepository{db: db}
}

func (r *commissionRepository) CreateIfAbsent(ctx context.Context, commission *model.Commission) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "affiliate_id"}, {Name: "sale_id"}},
			DoNothing: true,
		}).
		Create(commission)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *commissionRepository) GetBySale(ctx context.Context, affiliateID, saleID string) (*model.Commission, error) {
	var commission model.Commission
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND sale_id = ?", affiliateID, saleID).
		First(&commission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommissionNotFound
		}
		return nil, err
	}
	return &commission, nil
}

func (r *commissionRepository) ListPendingForUpdate(ctx context.Context, affiliateID string) ([]model.Commission, error) {
	var result []model.Commission
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("affiliate_id = ? AND status = ?", affiliateID, model.CommissionStatusPending).
		Order("created_at").
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *commissionRepository) MarkPaidByIDs(ctx context.Context, ids []string, settledAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&model.Commission{}).
		Where("id IN ? AND status = ?", ids, model.CommissionStatusPending).
		Updates(map[string]interface{}{
			"status":     model.CommissionStatusPaid,
			"settled_at": settledAt,
		})
	return result.RowsAffected, result.Error
}

func (r *commissionRepository) ListAffiliatesWithPendingAtLeast(ctx context.Context, min decimal.Decimal) ([]string, error) {
	var result []string
	err := r.db.WithContext(ctx).Model(&model.Commission{}).
		Select("affiliate_id").
		Where("status = ?", model.CommissionStatusPending).
		Group("affiliate_id").
		Having("SUM(commission_value) >= ?", min).
		Pluck("affiliate_id", &result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *commissionRepository) ListByAffiliate(ctx context.Context, affiliateID string, limit int) ([]model.Commission, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var result []model.Commission
	if err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at DESC").
		Limit(limit).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
