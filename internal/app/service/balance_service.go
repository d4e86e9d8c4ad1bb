package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vendimia/refledger/internal/app/model"
	"github.com/vendimia/refledger/internal/app/repository"
	"go.uber.org/zap"
)

// BalanceService exposes the materialized seller balance and the movement
// log behind it.
type BalanceService interface {
	// GetBalance returns the materialized row; sellers without movements get
	// a zeroed balance rather than an error.
	GetBalance(ctx context.Context, sellerID string) (*model.SellerBalance, error)
	ListMovements(ctx context.Context, sellerID string, limit int) ([]model.BalanceMovement, error)
	// RebuildBalance resums the full movement history and overwrites the
	// projection. Repair-only; never called on the hot path.
	RebuildBalance(ctx context.Context, sellerID string) (*model.SellerBalance, error)
}

type balanceService struct {
	balances  repository.SellerBalanceRepository
	movements repository.BalanceMovementRepository
	resummer  repository.BalanceResummer
	logger    *zap.Logger
}

// NewBalanceService returns a BalanceService over the given repositories.
// The resummer may be nil when repair is not wired (tests).
func NewBalanceService(balances repository.SellerBalanceRepository, movements repository.BalanceMovementRepository, resummer repository.BalanceResummer, logger *zap.Logger) BalanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &balanceService{
		balances:  balances,
		movements: movements,
		resummer:  resummer,
		logger:    logger,
	}
}

func (s *balanceService) GetBalance(ctx context.Context, sellerID string) (*model.SellerBalance, error) {
	balance, err := s.balances.Get(ctx, sellerID)
	if err != nil {
		if errors.Is(err, repository.ErrSellerBalanceNotFound) {
			return &model.SellerBalance{SellerID: sellerID}, nil
		}
		return nil, fmt.Errorf("get seller balance: %w", err)
	}
	return balance, nil
}

func (s *balanceService) ListMovements(ctx context.Context, sellerID string, limit int) ([]model.BalanceMovement, error) {
	movements, err := s.movements.ListBySeller(ctx, sellerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list balance movements: %w", err)
	}
	return movements, nil
}

func (s *balanceService) RebuildBalance(ctx context.Context, sellerID string) (*model.SellerBalance, error) {
	if s.resummer == nil {
		return nil, errors.New("balance rebuild is not configured")
	}

	now := time.Now().UTC()
	sums, err := s.resummer.Resum(ctx, sellerID, now)
	if err != nil {
		return nil, fmt.Errorf("rebuild balance: %w", err)
	}

	balance := &model.SellerBalance{
		SellerID:       sellerID,
		CurrentBalance: sums.Net(),
		TotalRevenue:   sums.Credits,
		DailyRevenue:   sums.DailyCredits,
		WeeklyRevenue:  sums.WeeklyCredits,
		MonthlyRevenue: sums.MonthlyCredits,
	}

	if err := s.balances.Put(ctx, balance); err != nil {
		return nil, fmt.Errorf("store rebuilt balance: %w", err)
	}

	s.logger.Warn("seller balance rebuilt from movement log",
		zap.String("seller_id", sellerID),
		zap.String("current_balance", balance.CurrentBalance.String()))

	return balance, nil
}
