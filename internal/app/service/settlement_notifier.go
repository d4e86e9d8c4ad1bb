package service

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/vendimia/refledger/internal/app/model"
	"go.uber.org/zap"
)

// SettlementNotifier publishes settlement notices to NATS JetStream for the
// notification dispatcher. Publish errors are logged and swallowed: a lost
// notification must never surface as a settlement failure.
type SettlementNotifier struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewSettlementNotifier creates a JetStream-backed Notifier.
func NewSettlementNotifier(js nats.JetStreamContext, logger *zap.Logger) *SettlementNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementNotifier{js: js, logger: logger}
}

// SettlementCompleted publishes the notice fire-and-forget.
func (n *SettlementNotifier) SettlementCompleted(notice model.SettlementNotice) {
	data, err := json.Marshal(notice)
	if err != nil {
		n.logger.Error("failed to marshal settlement notice",
			zap.String("affiliate_id", notice.AffiliateID),
			zap.Error(err))
		return
	}

	if _, err := n.js.Publish(model.SettlementStreamSubject, data); err != nil {
		n.logger.Error("failed to publish settlement notice",
			zap.String("affiliate_id", notice.AffiliateID),
			zap.String("movement_id", notice.ID),
			zap.Error(err))
	}
}
