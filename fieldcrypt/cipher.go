package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	ivSize   = 16
	saltSize = 64
	tagSize  = 16

	envelopeParts = 4
)

var (
	// ErrDecrypt is returned for any malformed or tampered envelope. The
	// cause (bad structure, bad base64, tag mismatch) is deliberately not
	// distinguished.
	ErrDecrypt = errors.New("fieldcrypt: decryption failed")

	// ErrPlaintextTooLong is returned by Encrypt when the plaintext exceeds
	// the caller-supplied bound.
	ErrPlaintextTooLong = errors.New("fieldcrypt: plaintext exceeds maximum length")
)

// Cipher encrypts and decrypts individual field values.
//
// A Cipher is constructed once at startup and is safe for concurrent use.
type Cipher struct {
	masterKey []byte
}

// New derives the master key from cfg and returns a ready Cipher.
func New(cfg Config) (*Cipher, error) {
	key, err := deriveMasterKey(cfg)
	if err != nil {
		return nil, err
	}
	return &Cipher{masterKey: key}, nil
}

// Encrypt seals plaintext into a four-part envelope
// "b64(iv):b64(salt):b64(tag):b64(ciphertext)". A fresh IV and a fresh
// per-value salt are drawn for every call. maxLen bounds the accepted
// plaintext length; zero means unbounded.
func (c *Cipher) Encrypt(plaintext string, maxLen int) (string, error) {
	if maxLen > 0 && len(plaintext) > maxLen {
		return "", ErrPlaintextTooLong
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("fieldcrypt: iv generation: %w", err)
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("fieldcrypt: salt generation: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	// Seal appends the 16-byte tag to the ciphertext; the envelope stores
	// the two components separately.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	enc := base64.StdEncoding
	return enc.EncodeToString(iv) + ":" +
		enc.EncodeToString(salt) + ":" +
		enc.EncodeToString(tag) + ":" +
		enc.EncodeToString(ct), nil
}

// Decrypt opens an envelope produced by Encrypt. Any structural defect or
// authentication-tag mismatch yields ErrDecrypt; corruption never surfaces
// as silently wrong plaintext.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != envelopeParts {
		return "", ErrDecrypt
	}

	enc := base64.StdEncoding
	iv, err := enc.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrDecrypt
	}
	salt, err := enc.DecodeString(parts[1])
	if err != nil || len(salt) != saltSize {
		return "", ErrDecrypt
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil || len(tag) != tagSize {
		return "", ErrDecrypt
	}
	ct, err := enc.DecodeString(parts[3])
	if err != nil {
		return "", ErrDecrypt
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", ErrDecrypt
	}

	plaintext, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// DecryptCompat is the single compatibility shim for values written before
// encryption-at-rest was introduced. A value with no ":" separator is
// treated as legacy plaintext and returned unchanged with legacy=true so
// the caller can log the downgrade. This is migration behavior, not a
// security property.
func (c *Cipher) DecryptCompat(stored string) (plaintext string, legacy bool, err error) {
	if !strings.Contains(stored, ":") {
		return stored, true, nil
	}
	plaintext, err = c.Decrypt(stored)
	return plaintext, false, err
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveValueKey(c.masterKey, salt))
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: cipher init: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}
