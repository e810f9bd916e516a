package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// Backup code alphabet excludes 0/O and 1/I to survive manual entry.
const backupCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const verificationSecretSize = 32

// NewBackupCode generates a recovery code of length chars, rendered in
// groups of five ("XXXXX-XXXXX") for readability.
func NewBackupCode(length int) (string, error) {
	if length < 8 || length > 32 {
		return "", errors.New("invalid backup code length")
	}

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(length + length/5)
	for i, v := range raw {
		if i > 0 && i%5 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(backupCodeAlphabet[int(v)%len(backupCodeAlphabet)])
	}
	return b.String(), nil
}

// CanonicalBackupCode normalizes user input before hashing: uppercase,
// separators stripped.
func CanonicalBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

// BackupCodeHash binds the code hash to its owner so identical codes
// issued to different users never share a stored hash.
func BackupCodeHash(userID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, ':')
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}

// NewVerificationToken returns an opaque email-verification token and the
// SHA-256 hash that is persisted in its place.
func NewVerificationToken() (token string, hash [32]byte, err error) {
	var secret [verificationSecretSize]byte
	if _, err = rand.Read(secret[:]); err != nil {
		return "", hash, err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), sha256.Sum256(secret[:]), nil
}

// HashVerificationToken recomputes the stored hash for a presented token.
// Unparseable input hashes to a value that matches nothing.
func HashVerificationToken(token string) [32]byte {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != verificationSecretSize {
		return sha256.Sum256([]byte("invalid:" + token))
	}
	return sha256.Sum256(raw)
}
