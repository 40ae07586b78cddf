package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText prepares chunk text for fingerprinting: Unicode NFC,
// whitespace runs collapsed to a single space, and surrounding space trimmed.
// Case is preserved because entity names are case-sensitive.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}

// Fingerprint returns the hex SHA-256 of the normalized text. Identical
// normalized text always yields the same fingerprint.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// ShortFingerprint truncates a fingerprint for log fields.
func ShortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
