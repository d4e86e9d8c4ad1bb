package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AffiliateLink tracks click accrual for one affiliate×product pair. The row
// is created lazily on the first click and mutated only inside a serializing
// transaction; PaidClicks never exceeds TotalClicks, and AccruedCredit only
// grows here (payout is a separate flow).
type AffiliateLink struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	AffiliateID   string          `gorm:"size:64;not null;uniqueIndex:idx_affiliate_product" json:"affiliate_id"`
	ProductID     string          `gorm:"size:64;not null;uniqueIndex:idx_affiliate_product" json:"product_id"`
	TotalClicks   int64           `gorm:"not null;default:0" json:"total_clicks"`
	PaidClicks    int64           `gorm:"not null;default:0" json:"paid_clicks"`
	AccruedCredit decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"accrued_credit"`
	LastClickAt   *time.Time      `json:"last_click_at,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AffiliateLink) TableName() string {
	return "affiliate_links"
}

// PendingClicks is the canonical pending formula; every call site must use
// it rather than recomputing the difference.
func (l AffiliateLink) PendingClicks() int64 {
	return l.TotalClicks - l.PaidClicks
}
