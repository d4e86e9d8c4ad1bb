package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vendimia/refledger/internal/app/repository"
	"go.uber.org/zap"
)

// SellerResolver maps an affiliate to the seller account its commissions
// settle into. Supplied by the identity layer; the accounting core does not
// own that mapping.
type SellerResolver interface {
	SellerFor(ctx context.Context, affiliateID string) (string, error)
}

// SelfSellerResolver treats the affiliate id as its own seller account,
// the default for marketplaces where every affiliate is a seller.
type SelfSellerResolver struct{}

func (SelfSellerResolver) SellerFor(_ context.Context, affiliateID string) (string, error) {
	return affiliateID, nil
}

// SettlementSweeper periodically settles affiliates whose pending sum has
// crossed the threshold without a triggering commission call, e.g. after a
// crashed settlement or a raised threshold being lowered again.
type SettlementSweeper struct {
	logger      *zap.Logger
	commissions repository.CommissionRepository
	engine      SettlementEngine
	resolver    SellerResolver
	threshold   decimal.Decimal
	interval    time.Duration
	stopChan    chan struct{}
}

// NewSettlementSweeper creates a sweeper; Start launches it.
func NewSettlementSweeper(logger *zap.Logger, commissions repository.CommissionRepository, engine SettlementEngine, resolver SellerResolver, threshold decimal.Decimal, interval time.Duration) *SettlementSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementSweeper{
		logger:      logger,
		commissions: commissions,
		engine:      engine,
		resolver:    resolver,
		threshold:   threshold,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *SettlementSweeper) Start() {
	go s.run()
}

// Stop stops the periodic sweep.
func (s *SettlementSweeper) Stop() {
	close(s.stopChan)
}

func (s *SettlementSweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			s.logger.Info("settlement sweeper stopped")
			return
		}
	}
}

func (s *SettlementSweeper) sweep() {
	ctx := context.Background()

	affiliates, err := s.commissions.ListAffiliatesWithPendingAtLeast(ctx, s.threshold)
	if err != nil {
		s.logger.Error("failed to list settleable affiliates", zap.Error(err))
		return
	}

	for _, affiliateID := range affiliates {
		sellerID, err := s.resolver.SellerFor(ctx, affiliateID)
		if err != nil {
			s.logger.Error("failed to resolve seller for affiliate",
				zap.String("affiliate_id", affiliateID),
				zap.Error(err))
			continue
		}

		result, err := s.engine.EvaluateAndSettle(ctx, affiliateID, sellerID)
		if err != nil {
			if errors.Is(err, ErrSettlementInProgress) {
				continue
			}
			s.logger.Error("sweep settlement failed",
				zap.String("affiliate_id", affiliateID),
				zap.Error(err))
			continue
		}

		if result.Settled {
			s.logger.Info("sweep settled affiliate",
				zap.String("affiliate_id", affiliateID),
				zap.String("amount", result.Amount.String()))
		}
	}
}
