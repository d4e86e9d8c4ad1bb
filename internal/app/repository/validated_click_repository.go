package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vendimia/refledger/internal/app/model"
	"gorm.io/gorm"
)

// ValidatedClickRepository defines the append-only audit trail plus the
// read-only window queries the fraud classifier rates against. Window reads
// may be slightly stale; they are never part of a mutation transaction.
type ValidatedClickRepository interface {
	Create(ctx context.Context, click *model.ValidatedClick) error
	CountValidByFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (int64, error)
	CountDistinctAffiliatesByIPSince(ctx context.Context, ip string, since time.Time) (int64, error)
	CountValidByIPSince(ctx context.Context, ip string, since time.Time) (int64, error)
	LastValidClickAtByIP(ctx context.Context, ip string) (*time.Time, error)
	CountValidByAffiliateSince(ctx context.Context, affiliateID string, since time.Time) (int64, error)
	HasValidFingerprintForAffiliateSince(ctx context.Context, fingerprint, affiliateID string, since time.Time) (bool, error)
	ListRecentByAffiliate(ctx context.Context, affiliateID string, limit int) ([]model.ValidatedClick, error)
}

type validatedClickRepository struct {
	db *gorm.DB
}

// NewValidatedClickRepository returns a GORM-backed ValidatedClickRepository.
func NewValidatedClickRepository(db *gorm.DB) ValidatedClickRepository {
	return &validatedClickRepository{db: db}
}

func (r *validatedClickRepository) Create(ctx context.Context, click *model.ValidatedClick) error {
	return r.db.WithContext(ctx).Create(click).Error
}

func (r *validatedClickRepository) CountValidByFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ValidatedClick{}).
		Where("fingerprint = ? AND valid = ? AND timestamp >= ?", fingerprint, true, since).
		Count(&count).Error
	return count, err
}

func (r *validatedClickRepository) CountDistinctAffiliatesByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ValidatedClick{}).
		Distinct("affiliate_id").
		Where("ip = ? AND valid = ? AND timestamp >= ?", ip, true, since).
		Count(&count).Error
	return count, err
}

func (r *validatedClickRepository) CountValidByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ValidatedClick{}).
		Where("ip = ? AND valid = ? AND timestamp >= ?", ip, true, since).
		Count(&count).Error
	return count, err
}

func (r *validatedClickRepository) LastValidClickAtByIP(ctx context.Context, ip string) (*time.Time, error) {
	var click model.ValidatedClick
	err := r.db.WithContext(ctx).
		Where("ip = ? AND valid = ?", ip, true).
		Order("timestamp DESC").
		First(&click).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &click.Timestamp, nil
}

func (r *validatedClickRepository) CountValidByAffiliateSince(ctx context.Context, affiliateID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ValidatedClick{}).
		Where("affiliate_id = ? AND valid = ? AND timestamp >= ?", affiliateID, true, since).
		Count(&count).Error
	return count, err
}

func (r *validatedClickRepository) HasValidFingerprintForAffiliateSince(ctx context.Context, fingerprint, affiliateID string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ValidatedClick{}).
		Where("fingerprint = ? AND affiliate_id = ? AND valid = ? AND timestamp >= ?", fingerprint, affiliateID, true, since).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

func (r *validatedClickRepository) ListRecentByAffiliate(ctx context.Context, affiliateID string, limit int) ([]model.ValidatedClick, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var result []model.ValidatedClick
	if err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}
