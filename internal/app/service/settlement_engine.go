package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendimia/refledger/internal/app/model"
	"github.com/vendimia/refledger/internal/app/repository"
	"github.com/vendimia/refledger/internal/infra/metrics"
	"go.uber.org/zap"
)

var (
	// ErrSettlementInProgress means another settlement holds the affiliate's
	// lock; the caller can simply skip, the holder will settle the same sum.
	ErrSettlementInProgress = errors.New("settlement already in progress for affiliate")
	// ErrMissingSellerID rejects settlement without a target seller account.
	ErrMissingSellerID = errors.New("settlement is missing target seller id")
)

// SettlementLocker serializes settlements per affiliate across processes.
// Acquire returns a release func on success; an error always means the lock
// is held elsewhere.
type SettlementLocker interface {
	Acquire(ctx context.Context, affiliateID string) (func(), error)
}

// Notifier informs the affiliate after a settlement commits. Delivery is
// fire-and-forget; failures are logged and never unwind the settlement.
type Notifier interface {
	SettlementCompleted(notice model.SettlementNotice)
}

// Settlement reports one evaluation outcome. When Settled is false,
// PendingSum carries the accumulated amount for observability.
type Settlement struct {
	Settled         bool            `json:"settled"`
	Amount          decimal.Decimal `json:"amount"`
	PendingSum      decimal.Decimal `json:"pending_sum"`
	CommissionCount int             `json:"commission_count"`
	MovementID      string          `json:"movement_id,omitempty"`
}

// SettlementEngine batches an affiliate's pending commissions into one
// balance credit once their sum crosses the threshold.
//
// The affiliate is only ever observable in two states, accumulating or
// settled; the settling step itself is a single atomic transaction.
type SettlementEngine interface {
	EvaluateAndSettle(ctx context.Context, affiliateID, targetSellerID string) (*Settlement, error)
}

type settlementEngine struct {
	tx        repository.TxManager
	locks     SettlementLocker
	notifier  Notifier
	threshold decimal.Decimal
	logger    *zap.Logger
}

// NewSettlementEngine wires the engine with its serialization lock and
// post-commit notifier.
func NewSettlementEngine(tx repository.TxManager, locks SettlementLocker, notifier Notifier, threshold decimal.Decimal, logger *zap.Logger) SettlementEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &settlementEngine{
		tx:        tx,
		locks:     locks,
		notifier:  notifier,
		threshold: threshold,
		logger:    logger,
	}
}

func (e *settlementEngine) EvaluateAndSettle(ctx context.Context, affiliateID, targetSellerID string) (*Settlement, error) {
	if affiliateID == "" {
		return nil, ErrMissingAffiliateID
	}
	if targetSellerID == "" {
		return nil, ErrMissingSellerID
	}

	release, err := e.locks.Acquire(ctx, affiliateID)
	if err != nil {
		// The locker only errors on contention; the holder settles the
		// same pending set.
		return nil, fmt.Errorf("%w: %v", ErrSettlementInProgress, err)
	}
	defer release()

	var out Settlement
	var notice model.SettlementNotice

	err = e.tx.Do(ctx, func(r repository.Repos) error {
		// Row locks on the pending set linearize the threshold check against
		// concurrent inserts and competing settlements.
		pending, err := r.Commissions.ListPendingForUpdate(ctx, affiliateID)
		if err != nil {
			return fmt.Errorf("load pending commissions: %w", err)
		}

		sum := decimal.Zero
		ids := make([]string, 0, len(pending))
		for _, c := range pending {
			sum = sum.Add(c.CommissionValue)
			ids = append(ids, c.ID)
		}

		out.PendingSum = sum
		out.CommissionCount = len(pending)

		if sum.LessThan(e.threshold) {
			return nil
		}

		now := time.Now().UTC()
		movement := &model.BalanceMovement{
			ID:          uuid.New().String(),
			SellerID:    targetSellerID,
			Kind:        model.MovementKindCredit,
			Source:      model.MovementSourceAffiliateCommission,
			ReferenceID: affiliateID,
			Amount:      sum,
			Description: fmt.Sprintf("settlement of %d affiliate commissions", len(pending)),
		}

		// All three writes commit together or not at all; a movement without
		// paid commissions (or the reverse) is a correctness violation.
		if err := r.Movements.Create(ctx, movement); err != nil {
			return fmt.Errorf("append balance movement: %w", err)
		}
		if err := r.Balances.Credit(ctx, targetSellerID, sum); err != nil {
			return fmt.Errorf("credit seller balance: %w", err)
		}
		// Paying by the locked ids keeps a commission confirmed after the
		// listing out of this settlement; it stays pending for the next one.
		paid, err := r.Commissions.MarkPaidByIDs(ctx, ids, now)
		if err != nil {
			return fmt.Errorf("mark commissions paid: %w", err)
		}
		if paid != int64(len(ids)) {
			return fmt.Errorf("mark commissions paid: %d of %d rows updated", paid, len(ids))
		}

		out.Settled = true
		out.Amount = sum
		out.MovementID = movement.ID

		notice = model.SettlementNotice{
			ID:              movement.ID,
			AffiliateID:     affiliateID,
			SellerID:        targetSellerID,
			Amount:          sum,
			CommissionCount: len(pending),
			SettledAt:       now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Settled {
		metrics.SettlementsTotal.Inc()
		amt, _ := out.Amount.Float64()
		metrics.SettledAmount.Add(amt)

		e.logger.Info("commissions settled",
			zap.String("affiliate_id", affiliateID),
			zap.String("seller_id", targetSellerID),
			zap.String("amount", out.Amount.String()),
			zap.Int("commissions", out.CommissionCount))

		if e.notifier != nil {
			go e.notifier.SettlementCompleted(notice)
		}
	} else {
		e.logger.Debug("settlement below threshold",
			zap.String("affiliate_id", affiliateID),
			zap.String("pending_sum", out.PendingSum.String()),
			zap.String("threshold", e.threshold.String()))
	}

	return &out, nil
}
