package secret

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	maskVisible       = 8
	fingerprintLength = 16
)

// Mask truncates a secret for log output.
func Mask(s string) string {
	if len(s) <= maskVisible {
		return "***"
	}
	return s[:maskVisible] + "..."
}

// Fingerprint returns a short, non-reversible identifier for a secret. It is
// used as the token key ID and in rotation notices.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}

func digest(b []byte) [32]byte {
	return sha256.Sum256(b)
}
