package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendimia/refledger/internal/app/model"
	"github.com/vendimia/refledger/internal/app/repository"
	"github.com/vendimia/refledger/internal/infra/metrics"
	"go.uber.org/zap"
)

var (
	// ErrMissingSaleID rejects a commission call without a sale reference.
	ErrMissingSaleID = errors.New("commission is missing sale id")
	// ErrInvalidSaleValue rejects non-positive sale values.
	ErrInvalidSaleValue = errors.New("sale value must be positive")
	// ErrInvalidCommissionPercent rejects rates outside (0, 100].
	ErrInvalidCommissionPercent = errors.New("commission percent must be in (0, 100]")
)

// RecordCommissionInput captures one affiliate-attributed sale confirmation.
type RecordCommissionInput struct {
	AffiliateID       string
	SaleID            string
	SaleValue         decimal.Decimal
	CommissionPercent decimal.Decimal
}

// CommissionService books pending commissions, exactly one per
// affiliate×sale. Repeated confirmations of the same sale are no-ops, so the
// sale pipeline can retry freely.
type CommissionService interface {
	// RecordCommission returns the commission for the sale and whether this
	// call created it.
	RecordCommission(ctx context.Context, input RecordCommissionInput) (*model.Commission, bool, error)
	ListCommissions(ctx context.Context, affiliateID string, limit int) ([]model.Commission, error)
}

type commissionService struct {
	commissions repository.CommissionRepository
	logger      *zap.Logger
}

// NewCommissionService returns a service backed by the given repository.
func NewCommissionService(commissions repository.CommissionRepository, logger *zap.Logger) CommissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &commissionService{commissions: commissions, logger: logger}
}

func (s *commissionService) RecordCommission(ctx context.Context, input RecordCommissionInput) (*model.Commission, bool, error) {
	if input.AffiliateID == "" {
		return nil, false, ErrMissingAffiliateID
	}
	if input.SaleID == "" {
		return nil, false, ErrMissingSaleID
	}
	if !input.SaleValue.IsPositive() {
		return nil, false, ErrInvalidSaleValue
	}
	if !input.CommissionPercent.IsPositive() || input.CommissionPercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, false, ErrInvalidCommissionPercent
	}

	commission := &model.Commission{
		ID:                uuid.New().String(),
		AffiliateID:       input.AffiliateID,
		SaleID:            input.SaleID,
		SaleValue:         input.SaleValue.Round(2),
		CommissionPercent: input.CommissionPercent,
		CommissionValue:   model.CommissionValueFor(input.SaleValue, input.CommissionPercent),
		Status:            model.CommissionStatusPending,
	}

	created, err := s.commissions.CreateIfAbsent(ctx, commission)
	if err != nil {
		return nil, false, fmt.Errorf("record commission: %w", err)
	}

	if !created {
		existing, err := s.commissions.GetBySale(ctx, input.AffiliateID, input.SaleID)
		if err != nil {
			return nil, false, fmt.Errorf("load existing commission: %w", err)
		}
		s.logger.Debug("duplicate sale confirmation ignored",
			zap.String("affiliate_id", input.AffiliateID),
			zap.String("sale_id", input.SaleID))
		return existing, false, nil
	}

	metrics.CommissionsRecorded.Inc()
	s.logger.Info("commission recorded",
		zap.String("affiliate_id", input.AffiliateID),
		zap.String("sale_id", input.SaleID),
		zap.String("commission_value", commission.CommissionValue.String()))

	return commission, true, nil
}

func (s *commissionService) ListCommissions(ctx context.Context, affiliateID string, limit int) ([]model.Commission, error) {
	list, err := s.commissions.ListByAffiliate(ctx, affiliateID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	return list, nil
}
