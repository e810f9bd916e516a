package fieldcrypt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength       = 32
	kdfIterations   = 100_000
	masterKeySalt   = "govault-field-encryption"
	devFallbackSeed = "govault-dev-only-not-a-secret"
)

// ErrMissingMasterKey is returned when no master key is configured and the
// cipher is constructed for production use.
var ErrMissingMasterKey = errors.New("fieldcrypt: master key not configured")

// Config holds the master key material for a [Cipher].
type Config struct {
	// MasterKey is either a 32-byte key encoded as 64 hex characters, which
	// is used directly, or an arbitrary passphrase that is stretched with
	// PBKDF2-HMAC-SHA256.
	MasterKey string

	// Production forbids the fixed development fallback key. With
	// Production set, an empty MasterKey is a hard construction failure.
	Production bool
}

func deriveMasterKey(cfg Config) ([]byte, error) {
	if cfg.MasterKey == "" {
		if cfg.Production {
			return nil, ErrMissingMasterKey
		}
		// Temporary development fallback. Must never be reachable in
		// production; Config.Production guards that path.
		log.Print("fieldcrypt: no master key configured, using development fallback key")
		return pbkdf2.Key([]byte(devFallbackSeed), []byte(masterKeySalt), kdfIterations, keyLength, sha256.New), nil
	}

	if len(cfg.MasterKey) == 2*keyLength {
		if raw, err := hex.DecodeString(cfg.MasterKey); err == nil {
			return raw, nil
		}
	}

	return pbkdf2.Key([]byte(cfg.MasterKey), []byte(masterKeySalt), kdfIterations, keyLength, sha256.New), nil
}

// deriveValueKey stretches the master key with the per-value salt embedded
// in each envelope.
func deriveValueKey(masterKey, salt []byte) []byte {
	return pbkdf2.Key(masterKey, salt, kdfIterations, keyLength, sha256.New)
}
