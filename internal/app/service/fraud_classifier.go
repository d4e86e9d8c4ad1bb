package service

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"github.com/vendimia/refledger/config"
	"github.com/vendimia/refledger/internal/app/model"
	"github.com/vendimia/refledger/internal/app/repository"
	"github.com/vendimia/refledger/internal/infra/metrics"
	"go.uber.org/zap"
)

var (
	// ErrMissingAffiliateID rejects a click event without an affiliate.
	ErrMissingAffiliateID = errors.New("click event is missing affiliate id")
	// ErrMissingProductID rejects a click event without a product.
	ErrMissingProductID = errors.New("click event is missing product id")
)

// Verdict is the classification outcome for one click event.
type Verdict struct {
	Valid       bool
	Reason      string
	Device      model.DeviceInfo
	Fingerprint string
	ClickID     string
}

// FraudClassifier decides whether a click event counts toward accrual.
//
// The classifier FAILS OPEN: any error while querying click history is
// logged and the click is treated as valid. This is a deliberate product
// decision favoring affiliate trust over aggressive blocking; changing it to
// fail-closed changes affiliate-facing behavior and must not happen quietly.
type FraudClassifier interface {
	Classify(ctx context.Context, event model.ClickEvent) (Verdict, error)
}

type fraudClassifier struct {
	clicks repository.ValidatedClickRepository
	cfg    config.FraudConfig
	logger *zap.Logger

	// seen pre-screens the fingerprint dedup rules: a definite miss skips
	// the history query. False positives only cost an extra read; the filter
	// can never cause a rejection on its own.
	mu   sync.Mutex
	seen *bloom.BloomFilter
}

const (
	bloomExpectedItems     = 1_000_000
	bloomFalsePositiveRate = 0.01
)

// NewFraudClassifier builds the classifier over the validated-click audit
// trail.
func NewFraudClassifier(clicks repository.ValidatedClickRepository, cfg config.FraudConfig, logger *zap.Logger) FraudClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fraudClassifier{
		clicks: clicks,
		cfg:    cfg,
		logger: logger,
		seen:   bloom.NewWithEstimates(bloomExpectedItems, bloomFalsePositiveRate),
	}
}

func (c *fraudClassifier) Classify(ctx context.Context, event model.ClickEvent) (Verdict, error) {
	if event.AffiliateID == "" {
		return Verdict{}, ErrMissingAffiliateID
	}
	if event.ProductID == "" {
		return Verdict{}, ErrMissingProductID
	}

	at := event.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	fingerprint := event.Fingerprint
	if fingerprint == "" {
		fingerprint = DeriveFingerprint(event.UserAgent, event.IP, event.Referer)
	}

	device := ParseDeviceInfo(event.UserAgent)

	reason := c.evaluate(ctx, event, fingerprint, at)

	verdict := Verdict{
		Valid:       reason == "",
		Reason:      reason,
		Device:      device,
		Fingerprint: fingerprint,
		ClickID:     uuid.New().String(),
	}

	click := &model.ValidatedClick{
		ID:              verdict.ClickID,
		AffiliateID:     event.AffiliateID,
		ProductID:       event.ProductID,
		LinkID:          event.LinkID,
		IP:              event.IP,
		Fingerprint:     fingerprint,
		BrowserFamily:   device.Browser,
		OSFamily:        device.OS,
		DeviceClass:     device.Device,
		Valid:           verdict.Valid,
		RejectionReason: reason,
		Timestamp:       at,
	}

	// Every classification is audited, rejected ones included. The audit
	// write itself must not take the click path down.
	if err := c.clicks.Create(ctx, click); err != nil {
		c.logger.Error("failed to persist validated click",
			zap.String("affiliate_id", event.AffiliateID),
			zap.Bool("valid", verdict.Valid),
			zap.Error(err))
	}

	if verdict.Valid {
		metrics.ClicksTotal.WithLabelValues("valid").Inc()
		c.remember(fingerprint, event.AffiliateID)
	} else {
		metrics.ClicksTotal.WithLabelValues("rejected").Inc()
		metrics.ClickRejections.WithLabelValues(reason).Inc()
	}

	return verdict, nil
}

// evaluate runs the rejection rules in order; first match wins, empty reason
// means valid. Any history-query error short-circuits to valid.
func (c *fraudClassifier) evaluate(ctx context.Context, event model.ClickEvent, fingerprint string, at time.Time) string {
	windowStart := at.Add(-c.cfg.Window())

	// a. private or loopback source address in production deployments.
	if c.cfg.RejectPrivateIPs && isPrivateAddress(event.IP) {
		return model.RejectPrivateIP
	}

	// b. too many valid clicks with the same fingerprint in the window.
	if c.maybeSeen(fingerprint) {
		count, err := c.clicks.CountValidByFingerprintSince(ctx, fingerprint, windowStart)
		if err != nil {
			return c.failOpen("fingerprint window count", err)
		}
		if count >= int64(c.cfg.MaxClicksPerFingerprint) {
			return model.RejectFingerprintRate
		}
	}

	// c. one address spraying clicks across many affiliates smells like a bot.
	affiliates, err := c.clicks.CountDistinctAffiliatesByIPSince(ctx, event.IP, windowStart)
	if err != nil {
		return c.failOpen("ip affiliate spread count", err)
	}
	if affiliates > int64(c.cfg.MaxAffiliatesPerIP) {
		return model.RejectIPAffiliateSpread
	}

	// d. implausible screen geometry (only when the client reported one).
	if event.ScreenWidth != 0 || event.ScreenHeight != 0 {
		if event.ScreenWidth < c.cfg.MinScreenWidth || event.ScreenWidth > c.cfg.MaxScreenWidth ||
			event.ScreenHeight < c.cfg.MinScreenHeight || event.ScreenHeight > c.cfg.MaxScreenHeight {
			return model.RejectScreenBounds
		}
	}

	// e. per-address click budget in the window.
	ipCount, err := c.clicks.CountValidByIPSince(ctx, event.IP, windowStart)
	if err != nil {
		return c.failOpen("ip window count", err)
	}
	if ipCount >= int64(c.cfg.MaxClicksPerIP) {
		return model.RejectIPRate
	}

	// f. minimum spacing between valid clicks from one address.
	last, err := c.clicks.LastValidClickAtByIP(ctx, event.IP)
	if err != nil {
		return c.failOpen("last click lookup", err)
	}
	if last != nil && at.Sub(*last) < c.cfg.MinClickInterval() {
		return model.RejectClickInterval
	}

	// g. per-affiliate click budget in the window.
	affCount, err := c.clicks.CountValidByAffiliateSince(ctx, event.AffiliateID, windowStart)
	if err != nil {
		return c.failOpen("affiliate window count", err)
	}
	if affCount >= int64(c.cfg.MaxClicksPerAffiliate) {
		return model.RejectAffiliateRate
	}

	// h. same fingerprint already credited this affiliate in the window.
	if c.maybeSeen(pairKey(fingerprint, event.AffiliateID)) {
		dup, err := c.clicks.HasValidFingerprintForAffiliateSince(ctx, fingerprint, event.AffiliateID, windowStart)
		if err != nil {
			return c.failOpen("fingerprint dedup lookup", err)
		}
		if dup {
			return model.RejectDuplicateFingerprint
		}
	}

	return ""
}

func (c *fraudClassifier) failOpen(query string, err error) string {
	c.logger.Warn("click history query failed, failing open to valid",
		zap.String("query", query),
		zap.Error(err))
	return ""
}

func (c *fraudClassifier) maybeSeen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen.TestString(key)
}

func (c *fraudClassifier) remember(fingerprint, affiliateID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen.AddString(fingerprint)
	c.seen.AddString(pairKey(fingerprint, affiliateID))
}

func pairKey(fingerprint, affiliateID string) string {
	return fingerprint + "|" + affiliateID
}

func isPrivateAddress(raw string) bool {
	ip := net.ParseIP(raw)
	if ip == nil {
		// Unparseable addresses are left to the rate rules.
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified()
}
