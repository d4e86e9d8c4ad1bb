package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vendimia/refledger/internal/app/model"
)

func newTestClassifier(store *memStore) FraudClassifier {
	return NewFraudClassifier(&memClickRepo{store: store}, testFraudConfig(), nil)
}

func baseEvent(at time.Time) model.ClickEvent {
	return model.ClickEvent{
		AffiliateID: "aff-1",
		ProductID:   "prod-1",
		IP:          "203.0.113.10",
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0 Safari/537.36",
		Referer:     "https://shop.example/p/1",
		Fingerprint: "fp-base",
		Timestamp:   at,
	}
}

func TestFraudClassifier_MissingIdentifiers(t *testing.T) {
	c := newTestClassifier(newMemStore())

	ev := baseEvent(time.Now().UTC())
	ev.AffiliateID = ""
	if _, err := c.Classify(context.Background(), ev); !errors.Is(err, ErrMissingAffiliateID) {
		t.Fatalf("expected ErrMissingAffiliateID, got %v", err)
	}

	ev = baseEvent(time.Now().UTC())
	ev.ProductID = ""
	if _, err := c.Classify(context.Background(), ev); !errors.Is(err, ErrMissingProductID) {
		t.Fatalf("expected ErrMissingProductID, got %v", err)
	}
}

func TestFraudClassifier_ValidClickIsAudited(t *testing.T) {
	store := newMemStore()
	c := newTestClassifier(store)

	ev := baseEvent(time.Now().UTC())
	ev.Fingerprint = ""

	verdict, err := c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("expected valid verdict, got rejection %q", verdict.Reason)
	}
	if verdict.Fingerprint == "" {
		t.Fatal("expected a derived fingerprint")
	}
	if verdict.Fingerprint != DeriveFingerprint(ev.UserAgent, ev.IP, ev.Referer) {
		t.Fatal("derived fingerprint does not match the deterministic hash")
	}
	if verdict.Device.Browser != model.BrowserChrome || verdict.Device.OS != model.OSWindows || verdict.Device.Device != model.DeviceDesktop {
		t.Fatalf("unexpected device info: %+v", verdict.Device)
	}

	if len(store.clicks) != 1 {
		t.Fatalf("expected 1 audited click, got %d", len(store.clicks))
	}
	if !store.clicks[0].Valid || store.clicks[0].RejectionReason != "" {
		t.Fatalf("audited click should be valid: %+v", store.clicks[0])
	}
}

func TestFraudClassifier_RejectedClickIsAudited(t *testing.T) {
	store := newMemStore()
	cfg := testFraudConfig()
	cfg.RejectPrivateIPs = true
	c := NewFraudClassifier(&memClickRepo{store: store}, cfg, nil)

	ev := baseEvent(time.Now().UTC())
	ev.IP = "10.1.2.3"

	verdict, err := c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Valid || verdict.Reason != model.RejectPrivateIP {
		t.Fatalf("expected private_ip rejection, got %+v", verdict)
	}

	if len(store.clicks) != 1 {
		t.Fatalf("expected the rejected click to be audited, got %d rows", len(store.clicks))
	}
	if store.clicks[0].Valid || store.clicks[0].RejectionReason != model.RejectPrivateIP {
		t.Fatalf("audit row should carry the rejection: %+v", store.clicks[0])
	}
}

func TestFraudClassifier_PrivateIPAllowedByDefault(t *testing.T) {
	c := newTestClassifier(newMemStore())

	ev := baseEvent(time.Now().UTC())
	ev.IP = "192.168.1.5"

	verdict, err := c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("private addresses should pass when rejection is off, got %q", verdict.Reason)
	}
}

func TestFraudClassifier_ScreenBounds(t *testing.T) {
	cases := []struct {
		name   string
		w, h   int
		reason string
	}{
		{"plausible desktop", 1920, 1080, ""},
		{"unreported geometry", 0, 0, ""},
		{"tiny headless window", 100, 100, model.RejectScreenBounds},
		{"absurdly wide", 20000, 1080, model.RejectScreenBounds},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClassifier(newMemStore())
			ev := baseEvent(time.Now().UTC())
			ev.ScreenWidth = tc.w
			ev.ScreenHeight = tc.h

			verdict, err := c.Classify(context.Background(), ev)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if verdict.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, verdict.Reason)
			}
		})
	}
}

func TestFraudClassifier_IPClickBudget(t *testing.T) {
	store := newMemStore()
	c := newTestClassifier(store)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Five spaced clicks with distinct fingerprints all pass.
	for i := 0; i < 5; i++ {
		ev := baseEvent(start.Add(time.Duration(i) * 2 * time.Minute))
		ev.Fingerprint = fmt.Sprintf("fp-%d", i)
		verdict, err := c.Classify(context.Background(), ev)
		if err != nil {
			t.Fatalf("click %d errored: %v", i, err)
		}
		if !verdict.Valid {
			t.Fatalf("click %d should be valid, got %q", i, verdict.Reason)
		}
	}

	ev := baseEvent(start.Add(20 * time.Minute))
	ev.Fingerprint = "fp-6"
	verdict, err := c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Valid || verdict.Reason != model.RejectIPRate {
		t.Fatalf("sixth click from one address should hit the budget, got %+v", verdict)
	}

	// After the counting window moves past the burst the same address may
	// click again.
	ev = baseEvent(start.Add(2 * time.Hour))
	ev.Fingerprint = "fp-7"
	verdict, err = c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("click after the window elapsed should be valid, got %q", verdict.Reason)
	}
}

func TestFraudClassifier_ClickIntervalTooShort(t *testing.T) {
	store := newMemStore()
	c := newTestClassifier(store)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := baseEvent(start)
	first.Fingerprint = "fp-a"
	if verdict, err := c.Classify(context.Background(), first); err != nil || !verdict.Valid {
		t.Fatalf("first click should be valid: %+v %v", verdict, err)
	}

	second := baseEvent(start.Add(10 * time.Second))
	second.Fingerprint = "fp-b"
	verdict, err := c.Classify(context.Background(), second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Valid || verdict.Reason != model.RejectClickInterval {
		t.Fatalf("expected interval rejection, got %+v", verdict)
	}
}

func TestFraudClassifier_FingerprintRate(t *testing.T) {
	store := newMemStore()
	c := newTestClassifier(store)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Same fingerprint across three different affiliates and addresses stays
	// under the per-fingerprint cap.
	for i := 0; i < 3; i++ {
		ev := baseEvent(start.Add(time.Duration(i) * 2 * time.Minute))
		ev.Fingerprint = "fp-shared"
		ev.AffiliateID = fmt.Sprintf("aff-%d", i)
		ev.IP = fmt.Sprintf("203.0.113.%d", 20+i)
		verdict, err := c.Classify(context.Background(), ev)
		if err != nil {
			t.Fatalf("click %d errored: %v", i, err)
		}
		if !verdict.Valid {
			t.Fatalf("click %d should be valid, got %q", i, verdict.Reason)
		}
	}

	ev := baseEvent(start.Add(10 * time.Minute))
	ev.Fingerprint = "fp-shared"
	ev.AffiliateID = "aff-9"
	ev.IP = "203.0.113.99"
	verdict, err := c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Valid || verdict.Reason != model.RejectFingerprintRate {
		t.Fatalf("expected fingerprint rate rejection, got %+v", verdict)
	}
}

func TestFraudClassifier_DuplicateFingerprintForAffiliate(t *testing.T) {
	store := newMemStore()
	c := newTestClassifier(store)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := baseEvent(start)
	first.Fingerprint = "fp-dup"
	if verdict, err := c.Classify(context.Background(), first); err != nil || !verdict.Valid {
		t.Fatalf("first click should be valid: %+v %v", verdict, err)
	}

	// New address dodges the per-IP rules; the fingerprint has already
	// credited this affiliate inside the window.
	second := baseEvent(start.Add(5 * time.Minute))
	second.Fingerprint = "fp-dup"
	second.IP = "203.0.113.77"
	verdict, err := c.Classify(context.Background(), second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Valid || verdict.Reason != model.RejectDuplicateFingerprint {
		t.Fatalf("expected duplicate fingerprint rejection, got %+v", verdict)
	}
}

func TestFraudClassifier_DuplicateOutsideWindowAccepted(t *testing.T) {
	store := newMemStore()
	c := newTestClassifier(store)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := baseEvent(start)
	first.Fingerprint = "fp-old"
	if verdict, err := c.Classify(context.Background(), first); err != nil || !verdict.Valid {
		t.Fatalf("first click should be valid: %+v %v", verdict, err)
	}

	second := baseEvent(start.Add(2 * time.Hour))
	second.Fingerprint = "fp-old"
	second.IP = "203.0.113.77"
	verdict, err := c.Classify(context.Background(), second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("click outside the window should be valid, got %q", verdict.Reason)
	}
}

func TestFraudClassifier_AffiliateSpreadFromOneAddress(t *testing.T) {
	store := newMemStore()
	cfg := testFraudConfig()
	cfg.MaxAffiliatesPerIP = 2
	c := NewFraudClassifier(&memClickRepo{store: store}, cfg, nil)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ev := baseEvent(start.Add(time.Duration(i) * 2 * time.Minute))
		ev.AffiliateID = fmt.Sprintf("aff-%d", i)
		ev.Fingerprint = fmt.Sprintf("fp-%d", i)
		verdict, err := c.Classify(context.Background(), ev)
		if err != nil {
			t.Fatalf("click %d errored: %v", i, err)
		}
		if !verdict.Valid {
			t.Fatalf("click %d should be valid, got %q", i, verdict.Reason)
		}
	}

	ev := baseEvent(start.Add(10 * time.Minute))
	ev.AffiliateID = "aff-9"
	ev.Fingerprint = "fp-9"
	verdict, err := c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Valid || verdict.Reason != model.RejectIPAffiliateSpread {
		t.Fatalf("expected affiliate spread rejection, got %+v", verdict)
	}
}

func TestFraudClassifier_AffiliateClickBudget(t *testing.T) {
	store := newMemStore()
	cfg := testFraudConfig()
	cfg.MaxClicksPerAffiliate = 2
	c := NewFraudClassifier(&memClickRepo{store: store}, cfg, nil)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		ev := baseEvent(start.Add(time.Duration(i) * 2 * time.Minute))
		ev.Fingerprint = fmt.Sprintf("fp-%d", i)
		ev.IP = fmt.Sprintf("203.0.113.%d", 30+i)
		verdict, err := c.Classify(context.Background(), ev)
		if err != nil {
			t.Fatalf("click %d errored: %v", i, err)
		}
		if !verdict.Valid {
			t.Fatalf("click %d should be valid, got %q", i, verdict.Reason)
		}
	}

	ev := baseEvent(start.Add(10 * time.Minute))
	ev.Fingerprint = "fp-9"
	ev.IP = "203.0.113.99"
	verdict, err := c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Valid || verdict.Reason != model.RejectAffiliateRate {
		t.Fatalf("expected affiliate budget rejection, got %+v", verdict)
	}
}

func TestFraudClassifier_FailsOpenOnQueryErrors(t *testing.T) {
	store := newMemStore()
	store.clickQueryErr = errors.New("connection refused")
	c := newTestClassifier(store)

	verdict, err := c.Classify(context.Background(), baseEvent(time.Now().UTC()))
	if err != nil {
		t.Fatalf("classification must not surface history errors: %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("history errors must fail open to valid, got %q", verdict.Reason)
	}
}
