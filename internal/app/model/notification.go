package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementNotice is the fire-and-forget event published after a settlement
// commits, consumed by the notification dispatcher.
type SettlementNotice struct {
	ID              string          `json:"id"`
	AffiliateID     string          `json:"affiliate_id"`
	SellerID        string          `json:"seller_id"`
	Amount          decimal.Decimal `json:"amount"`
	CommissionCount int             `json:"commission_count"`
	SettledAt       time.Time       `json:"settled_at"`
}

const (
	SettlementStreamName     = "SETTLEMENTS"
	SettlementStreamSubject  = "settlements.completed"
	SettlementConsumerName   = "settlement-notifier"
	SettlementStreamMaxBytes = 1024 * 1024 * 50 // 50MB
)
