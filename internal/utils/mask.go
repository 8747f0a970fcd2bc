package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaskValue redacts a sensitive value for storage and logging. Values of
// four characters or fewer become all asterisks; longer values keep the
// first two and last two characters.
func MaskValue(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}

// MaskEmail redacts the local part of an address and leaves the domain
// readable. Inputs without a domain fall back to MaskValue.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return MaskValue(email)
	}
	var maskedLocal string
	if len(local) <= 2 {
		first := "*"
		if local != "" {
			first = string(local[0])
		}
		maskedLocal = first + "*"
	} else {
		maskedLocal = string(local[0]) + strings.Repeat("*", len(local)-2) + string(local[len(local)-1])
	}
	return maskedLocal + "@" + domain
}

// HashValue returns the hex-encoded SHA-256 digest of a value. Used for
// audit correlation without storing the raw input.
func HashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
