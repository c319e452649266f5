package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKD so that visually identical passphrases derive the
// same key regardless of how they were typed.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// NormalizeEmail folds compatibility characters, trims whitespace and
// lower-cases an address before it is sent to the backend or remembered.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
}

// MaskEmail hides the local part of an address except its first two runes,
// e.g. "admin@kodj.dev" becomes "ad***@kodj.dev".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	local := []rune(email[:at])
	if len(local) <= 2 {
		return email
	}
	return string(local[:2]) + "***" + email[at:]
}
