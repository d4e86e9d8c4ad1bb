package model

import "time"

// ClickEvent is the ephemeral input delivered by the click-ingestion
// endpoint. It is never persisted as-is; classification turns it into a
// ValidatedClick.
type ClickEvent struct {
	AffiliateID  string    `json:"affiliate_id"`
	ProductID    string    `json:"product_id"`
	LinkID       *string   `json:"link_id,omitempty"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"user_agent"`
	Referer      string    `json:"referer"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	ScreenWidth  int       `json:"screen_width,omitempty"`
	ScreenHeight int       `json:"screen_height,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`
	Locale       string    `json:"locale,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Rejection reasons recorded on audited clicks. Stable strings: they are
// persisted and reported, not just logged.
const (
	RejectPrivateIP            = "private_ip"
	RejectFingerprintRate      = "fingerprint_rate_exceeded"
	RejectIPAffiliateSpread    = "ip_affiliate_spread"
	RejectScreenBounds         = "screen_out_of_bounds"
	RejectIPRate               = "ip_rate_exceeded"
	RejectClickInterval        = "click_interval_too_short"
	RejectAffiliateRate        = "affiliate_rate_exceeded"
	RejectDuplicateFingerprint = "duplicate_fingerprint"
)

// ValidatedClick is the immutable audit record written for every
// classification, accepted or rejected. Rows are append-only.
type ValidatedClick struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	AffiliateID     string    `gorm:"size:64;not null;index:idx_clicks_affiliate" json:"affiliate_id"`
	ProductID       string    `gorm:"size:64;not null" json:"product_id"`
	LinkID          *string   `gorm:"size:64" json:"link_id,omitempty"`
	IP              string    `gorm:"size:64;not null;index:idx_clicks_ip" json:"ip"`
	Fingerprint     string    `gorm:"size:128;not null;index:idx_clicks_fingerprint" json:"fingerprint"`
	BrowserFamily   string    `gorm:"size:32;not null" json:"browser_family"`
	OSFamily        string    `gorm:"size:32;not null" json:"os_family"`
	DeviceClass     string    `gorm:"size:32;not null" json:"device_class"`
	Valid           bool      `gorm:"not null;index" json:"valid"`
	RejectionReason string    `gorm:"size:64" json:"rejection_reason,omitempty"`
	Timestamp       time.Time `gorm:"not null;index" json:"timestamp"`
}

func (ValidatedClick) TableName() string {
	return "validated_clicks"
}
