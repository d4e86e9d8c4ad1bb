package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/vendimia/refledger/internal/app/model"
)

// MovementSums is the result of resumming the full movement history of one
// seller, with revenue windows recomputed from scratch.
type MovementSums struct {
	Credits        decimal.Decimal
	Debits         decimal.Decimal
	DailyCredits   decimal.Decimal
	WeeklyCredits  decimal.Decimal
	MonthlyCredits decimal.Decimal
}

// Net returns credits minus debits.
func (s MovementSums) Net() decimal.Decimal {
	return s.Credits.Sub(s.Debits)
}

// BalanceResummer recomputes a seller balance from the movement log. This is
// a repair tool; the hot path always reads the materialized projection.
type BalanceResummer interface {
	Resum(ctx context.Context, sellerID string, now time.Time) (MovementSums, error)
}

type pgxBalanceResummer struct {
	pool *pgxpool.Pool
}

// NewBalanceResummer returns a BalanceResummer running raw aggregate SQL on
// the pgx pool, bypassing the ORM for the full-history scan.
func NewBalanceResummer(pool *pgxpool.Pool) BalanceResummer {
	return &pgxBalanceResummer{pool: pool}
}

func (r *pgxBalanceResummer) Resum(ctx context.Context, sellerID string, now time.Time) (MovementSums, error) {
	const query = `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE kind = $2), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = $3), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = $2 AND created_at >= $4), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = $2 AND created_at >= $5), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = $2 AND created_at >= $6), 0)
		FROM balance_movements
		WHERE seller_id = $1`

	var sums MovementSums
	err := r.pool.QueryRow(ctx, query, sellerID,
		model.MovementKindCredit, model.MovementKindDebit,
		now.AddDate(0, 0, -1), now.AddDate(0, 0, -7), now.AddDate(0, -1, 0)).
		Scan(&sums.Credits, &sums.Debits,
			&sums.DailyCredits, &sums.WeeklyCredits, &sums.MonthlyCredits)
	if err != nil {
		return MovementSums{}, fmt.Errorf("resum movements: %w", err)
	}

	return sums, nil
}
