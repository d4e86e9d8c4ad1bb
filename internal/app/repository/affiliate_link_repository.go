package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vendimia/refledger/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrAffiliateLinkNotFound signals that no accrual row exists yet for an
	// affiliate×product pair.
	ErrAffiliateLinkNotFound = errors.New("affiliate link not found")
)

// AffiliateLinkRepository defines the data access contract for per-link
// click accrual counters.
type AffiliateLinkRepository interface {
	// GetOrCreateForUpdate returns the link row locked for the duration of
	// the surrounding transaction, lazily creating it on first use. Callers
	// must be inside a TxManager scope.
	GetOrCreateForUpdate(ctx context.Context, affiliateID, productID string) (*model.AffiliateLink, error)
	Save(ctx context.Context, link *model.AffiliateLink) error
	ListByAffiliate(ctx context.Context, affiliateID string) ([]model.AffiliateLink, error)
}

type affiliateLinkRepository struct {
	db *gorm.DB
}

// NewAffiliateLinkRepository returns a GORM-backed AffiliateLinkRepository.
func NewAffiliateLinkRepository(db *gorm.DB) AffiliateLinkRepository {
	return &affiliateLinkRepository{db: db}
}

func (r *affiliateLinkRepository) GetOrCreateForUpdate(ctx context.Context, affiliateID, productID string) (*model.AffiliateLink, error) {
	link, err := r.getForUpdate(ctx, affiliateID, productID)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, ErrAffiliateLinkNotFound) {
		return nil, err
	}

	// First click for this pair: insert, tolerating a concurrent insert of
	// the same key, then re-read under the row lock.
	fresh := &model.AffiliateLink{
		ID:          uuid.New().String(),
		AffiliateID: affiliateID,
		ProductID:   productID,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "affiliate_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(fresh).Error; err != nil {
		return nil, err
	}

	return r.getForUpdate(ctx, affiliateID, productID)
}

func (r *affiliateLinkRepository) getForUpdate(ctx context.Context, affiliateID, productID string) (*model.AffiliateLink, error) {
	var link model.AffiliateLink
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("affiliate_id = ? AND product_id = ?", affiliateID, productID).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAffiliateLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *affiliateLinkRepository) Save(ctx context.Context, link *model.AffiliateLink) error {
	result := r.db.WithContext(ctx).
		Model(&model.AffiliateLink{}).
		Where("id = ?", link.ID).
		Updates(map[string]interface{}{
			"total_clicks":   link.TotalClicks,
			"paid_clicks":    link.PaidClicks,
			"accrued_credit": link.AccruedCredit,
			"last_click_at":  link.LastClickAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAffiliateLinkNotFound
	}
	return nil
}

func (r *affiliateLinkRepository) ListByAffiliate(ctx context.Context, affiliateID string) ([]model.AffiliateLink, error) {
	var result []model.AffiliateLink
	if err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("product_id").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
