package service

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveFingerprint builds the deterministic fallback fingerprint used when
// the client supplies none. Same (userAgent, ip, referer) always hashes to
// the same value, so dedup rules keep working for clients without
// fingerprinting scripts.
func DeriveFingerprint(userAgent, ip, referer string) string {
	h := sha256.New()
	h.Write([]byte(userAgent))
	h.Write([]byte{0})
	h.Write([]byte(ip))
	h.Write([]byte{0})
	h.Write([]byte(referer))
	return hex.EncodeToString(h.Sum(nil))
}
