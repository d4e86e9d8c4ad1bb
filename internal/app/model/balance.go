package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Movement kinds and sources.
const (
	MovementKindCredit = "credit"
	MovementKindDebit  = "debit"

	MovementSourceAffiliateCommission = "affiliate_commission"
	MovementSourceManualAdjustment    = "manual_adjustment"
)

// BalanceMovement is the append-only source of truth for every balance
// change. Rows are never updated or deleted; SellerBalance is a projection
// maintained in the same transaction that writes the movement.
type BalanceMovement struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	SellerID    string          `gorm:"size:64;not null;index:idx_movements_seller" json:"seller_id"`
	Kind        string          `gorm:"size:16;not null" json:"kind"`
	Source      string          `gorm:"size:32;not null" json:"source"`
	ReferenceID string          `gorm:"size:64;not null;index" json:"reference_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Description string          `gorm:"size:256" json:"description"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (BalanceMovement) TableName() string {
	return "balance_movements"
}

// SellerBalance is the materialized per-seller projection of the movement
// log. It is mutated only alongside the movement that changed it, never
// recomputed on the hot path.
type SellerBalance struct {
	SellerID       string          `gorm:"primaryKey;size:64" json:"seller_id"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"current_balance"`
	TotalRevenue   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_revenue"`
	DailyRevenue   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"daily_revenue"`
	WeeklyRevenue  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"weekly_revenue"`
	MonthlyRevenue decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"monthly_revenue"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SellerBalance) TableName() string {
	return "seller_balances"
}
