package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Commission statuses. A commission is pending from sale confirmation until
// a settlement flips it to paid; there is no other transition.
const (
	CommissionStatusPending = "pending"
	CommissionStatusPaid    = "paid"
)

// Commission is one pending payout obligation per affiliate×sale. The
// (affiliate_id, sale_id) pair is unique so the sale-confirmation pipeline
// can safely retry.
type Commission struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	AffiliateID       string          `gorm:"size:64;not null;uniqueIndex:idx_commission_sale" json:"affiliate_id"`
	SaleID            string          `gorm:"size:64;not null;uniqueIndex:idx_commission_sale" json:"sale_id"`
	SaleValue         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"sale_value"`
	CommissionPercent decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"commission_percent"`
	CommissionValue   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"commission_value"`
	Status            string          `gorm:"size:16;not null;index" json:"status"`
	SettledAt         *time.Time      `json:"settled_at,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Commission) TableName() string {
	return "commissions"
}

// CommissionValueFor computes round(saleValue·pct/100, 2), the single
// formula used for every commission amount in the system.
func CommissionValueFor(saleValue, pct decimal.Decimal) decimal.Decimal {
	return saleValue.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
}
