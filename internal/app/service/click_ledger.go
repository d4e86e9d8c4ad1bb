package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vendimia/refledger/config"
	"github.com/vendimia/refledger/internal/app/model"
	"github.com/vendimia/refledger/internal/app/repository"
	"github.com/vendimia/refledger/internal/infra/metrics"
	"go.uber.org/zap"
)

// Accrual reports the outcome of recording one click against a link.
type Accrual struct {
	CreditIssued          bool            `json:"credit_issued"`
	CreditAmount          decimal.Decimal `json:"credit_amount"`
	AccruedCredit         decimal.Decimal `json:"accrued_credit"`
	RemainingToNextCredit int64           `json:"remaining_to_next_credit"`
	TotalClicks           int64           `json:"total_clicks"`
}

// ClickLedger accrues validated clicks into per-link counters and converts
// full click cycles into micro-credits. This credit stream is independent of
// the commission/balance stream and is never merged with it.
type ClickLedger interface {
	RecordClick(ctx context.Context, affiliateID, productID string, valid bool, at time.Time) (*Accrual, error)
	ListLinks(ctx context.Context, affiliateID string) ([]model.AffiliateLink, error)
}

type clickLedger struct {
	tx     repository.TxManager
	links  repository.AffiliateLinkRepository
	cfg    config.AccrualConfig
	logger *zap.Logger
}

// NewClickLedger returns a ClickLedger running each accrual inside one
// serializing transaction per link row.
func NewClickLedger(tx repository.TxManager, links repository.AffiliateLinkRepository, cfg config.AccrualConfig, logger *zap.Logger) ClickLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &clickLedger{tx: tx, links: links, cfg: cfg, logger: logger}
}

func (s *clickLedger) RecordClick(ctx context.Context, affiliateID, productID string, valid bool, at time.Time) (*Accrual, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	cycle := int64(s.cfg.ClicksPerCredit)
	unit := s.cfg.CreditUnitAmount()

	var out Accrual
	err := s.tx.Do(ctx, func(r repository.Repos) error {
		// The row lock taken here serializes the modulo-boundary check
		// against concurrent clicks on the same link.
		link, err := r.Links.GetOrCreateForUpdate(ctx, affiliateID, productID)
		if err != nil {
			return fmt.Errorf("load affiliate link: %w", err)
		}

		link.LastClickAt = &at
		if valid {
			link.TotalClicks++

			pending := link.PendingClicks()
			if pending > 0 && pending%cycle == 0 {
				link.AccruedCredit = link.AccruedCredit.Add(unit)
				link.PaidClicks += cycle
				out.CreditIssued = true
				out.CreditAmount = unit
			}
		}

		if err := r.Links.Save(ctx, link); err != nil {
			return fmt.Errorf("save affiliate link: %w", err)
		}

		out.AccruedCredit = link.AccruedCredit
		out.TotalClicks = link.TotalClicks
		out.RemainingToNextCredit = cycle - link.PendingClicks()%cycle
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !out.CreditIssued {
		out.CreditAmount = decimal.Zero
	}

	if out.CreditIssued {
		metrics.CreditsIssued.Inc()
		s.logger.Info("click credit issued",
			zap.String("affiliate_id", affiliateID),
			zap.String("product_id", productID),
			zap.String("amount", out.CreditAmount.String()),
			zap.Int64("total_clicks", out.TotalClicks))
	}

	return &out, nil
}

func (s *clickLedger) ListLinks(ctx context.Context, affiliateID string) ([]model.AffiliateLink, error) {
	links, err := s.links.ListByAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("list affiliate links: %w", err)
	}
	return links, nil
}
