package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vendimia/refledger/internal/app/model"
	"go.uber.org/zap"
)

// NotificationConsumer drains settlement notices from NATS JetStream and
// hands them to the downstream dispatch channel (mail, webhooks). Delivery
// is decoupled from the settlement transaction on purpose.
type NotificationConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewNotificationConsumer creates the settlement notice consumer.
func NewNotificationConsumer(js nats.JetStreamContext, logger *zap.Logger) *NotificationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationConsumer{js: js, logger: logger}
}

// Start ensures the stream and durable consumer exist, then begins pulling
// notices in a background goroutine.
func (c *NotificationConsumer) Start() error {
	_, err := c.js.StreamInfo(model.SettlementStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.SettlementStreamName,
			Subjects: []string{model.SettlementStreamSubject},
			MaxBytes: model.SettlementStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create settlement stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.SettlementStreamName, model.SettlementConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.SettlementStreamName, &nats.ConsumerConfig{
			Durable:   model.SettlementConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create settlement consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.SettlementStreamSubject, model.SettlementConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe to settlement notices: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *NotificationConsumer) consume(sub *nats.Subscription) {
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch settlement notices", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var notice model.SettlementNotice
			if err := json.Unmarshal(msg.Data, &notice); err != nil {
				c.logger.Error("failed to unmarshal settlement notice", zap.Error(err))
				msg.Nak()
				continue
			}

			c.dispatch(notice)
			msg.Ack()
		}
	}
}

// dispatch is the hand-off point to the marketplace's notification channel.
// The accounting core only guarantees the notice reaches this point.
func (c *NotificationConsumer) dispatch(notice model.SettlementNotice) {
	c.logger.Info("settlement notification dispatched",
		zap.String("movement_id", notice.ID),
		zap.String("affiliate_id", notice.AffiliateID),
		zap.String("seller_id", notice.SellerID),
		zap.String("amount", notice.Amount.String()),
		zap.Int("commissions", notice.CommissionCount),
		zap.Time("settled_at", notice.SettledAt),
	)
}
