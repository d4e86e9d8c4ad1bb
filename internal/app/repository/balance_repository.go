package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/vendimia/refledger/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrSellerBalanceNotFound signals that a seller has no materialized
	// balance row yet.
	ErrSellerBalanceNotFound = errors.New("seller balance not found")
)

// BalanceMovementRepository appends to the immutable movement log. There is
// deliberately no update or delete.
type BalanceMovementRepository interface {
	Create(ctx context.Context, movement *model.BalanceMovement) error
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]model.BalanceMovement, error)
}

type balanceMovementRepository struct {
	db *gorm.DB
}

// NewBalanceMovementRepository returns a GORM-backed BalanceMovementRepository.
func NewBalanceMovementRepository(db *gorm.DB) BalanceMovementRepository {
	return &balanceMovementRepository{db: db}
}

func (r *balanceMovementRepository) Create(ctx context.Context, movement *model.BalanceMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *balanceMovementRepository) ListBySeller(ctx context.Context, sellerID string, limit int) ([]model.BalanceMovement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var result []model.BalanceMovement
	if err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// SellerBalanceRepository maintains the materialized balance projection.
type SellerBalanceRepository interface {
	Get(ctx context.Context, sellerID string) (*model.SellerBalance, error)
	// Credit adds amount to the seller's balance and revenue aggregates,
	// creating the row when absent. Must run in the same transaction as the
	// movement append that justifies it.
	Credit(ctx context.Context, sellerID string, amount decimal.Decimal) error
	// Put overwrites the projection; repair flows only.
	Put(ctx context.Context, balance *model.SellerBalance) error
}

type sellerBalanceRepository struct {
	db *gorm.DB
}

// NewSellerBalanceRepository returns a GORM-backed SellerBalanceRepository.
func NewSellerBalanceRepository(db *gorm.DB) SellerBalanceRepository {
	return &sellerBalanceRepository{db: db}
}

func (r *sellerBalanceRepository) Get(ctx context.Context, sellerID string) (*model.SellerBalance, error) {
	var balance model.SellerBalance
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSellerBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

func (r *sellerBalanceRepository) Credit(ctx context.Context, sellerID string, amount decimal.Decimal) error {
	balance := &model.SellerBalance{
		SellerID:       sellerID,
		CurrentBalance: amount,
		TotalRevenue:   amount,
		DailyRevenue:   amount,
		WeeklyRevenue:  amount,
		MonthlyRevenue: amount,
	}

	// Atomic add on conflict keeps the projection correct under concurrent
	// settlements for different affiliates of the same seller.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "seller_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"current_balance": gorm.Expr("seller_balances.current_balance + ?", amount),
				"total_revenue":   gorm.Expr("seller_balances.total_revenue + ?", amount),
				"daily_revenue":   gorm.Expr("seller_balances.daily_revenue + ?", amount),
				"weekly_revenue":  gorm.Expr("seller_balances.weekly_revenue + ?", amount),
				"monthly_revenue": gorm.Expr("seller_balances.monthly_revenue + ?", amount),
			}),
		}).
		Create(balance).Error
}

func (r *sellerBalanceRepository) Put(ctx context.Context, balance *model.SellerBalance) error {
	return r.db.WithContext(ctx).Save(balance).Error
}
