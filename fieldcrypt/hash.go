package fieldcrypt

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SearchHash returns the deterministic lookup hash for a field value:
// hex(SHA-256(lowercase(trim(text)))). Encrypted columns are never queried
// by ciphertext; equality lookups go through this hash instead.
func SearchHash(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// HashEqual compares a computed search hash against a stored one in
// constant time.
func HashEqual(computed, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(computed), []byte(stored)) == 1
}
