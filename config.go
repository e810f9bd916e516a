package goVault

import (
	"errors"
	"time"

	"github.com/MrEthical07/goVault/ratelimit"
)

const (
	minAttemptWindow = time.Minute
	maxAttemptWindow = 1440 * time.Minute
)

// Config is the complete tuning surface of the engine. Configure once at
// startup; the engine treats it as immutable afterwards.
type Config struct {
	// Production makes missing secrets a hard construction failure and
	// forbids every development fallback.
	Production bool

	Crypto       CryptoConfig
	Token        TokenConfig
	TOTP         TOTPConfig
	TwoFactor    TwoFactorConfig
	RateLimit    RateLimitConfig
	Verification VerificationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig

	// RequireVerifiedEmail blocks login until the address is verified.
	RequireVerifiedEmail bool
}

// CryptoConfig feeds the fieldcrypt cipher.
type CryptoConfig struct {
	// MasterKey is 64 hex chars (used directly) or a passphrase
	// (PBKDF2-stretched). Required in production.
	MasterKey string
	// MaxFieldLength bounds encrypted PII plaintext. Defaults to 1024.
	MaxFieldLength int
}

// TokenConfig feeds the token manager.
type TokenConfig struct {
	// SigningSecret is required in production.
	SigningSecret      string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	RememberRefreshTTL time.Duration
	Issuer             string
}

// TOTPConfig tunes code generation and verification.
type TOTPConfig struct {
	Issuer string
	Digits int // default 6
	Period int // seconds, default 30
	Skew   int // accepted adjacent time steps, default 1
	// SecretMaxLen bounds the encrypted secret plaintext; TOTP secrets are
	// fixed-length base32 strings, so 64 is generous. Default 64.
	SecretMaxLen int
}

// TwoFactorConfig tunes backup codes, brute-force control and the login
// challenge.
type TwoFactorConfig struct {
	BackupCodeCount  int           // default 10
	BackupCodeLength int           // default 10
	MaxAttempts      int           // failures tolerated per window, default 5
	AttemptWindow    time.Duration // rolling window, default 15m, clamped to [1m,24h]
	ChallengeTTL     time.Duration // login challenge lifetime, default 5m
}

// RateLimitConfig names the request limiters and which of them gate login.
type RateLimitConfig struct {
	Enabled bool
	Prefix  string
	Rules   map[string]ratelimit.Rule
	// LoginLimiters are evaluated, most restrictive first-denial wins,
	// before password verification.
	LoginLimiters []string
}

// VerificationConfig tunes email verification tokens.
type VerificationConfig struct {
	TokenTTL time.Duration // default 24h
}

// AuditConfig tunes the async security/audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking the request path.
	DropIfFull bool
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DevConfig returns a permissive configuration for local development.
// Secrets may be absent; fieldcrypt falls back to its fixed dev key.
func DevConfig() Config {
	cfg := baseConfig()
	cfg.Production = false
	return cfg
}

// ProductionConfig returns the hardened preset. The caller must still set
// Crypto.MasterKey and Token.SigningSecret; Validate enforces both.
func ProductionConfig() Config {
	cfg := baseConfig()
	cfg.Production = true
	cfg.RequireVerifiedEmail = true
	return cfg
}

func baseConfig() Config {
	return Config{
		Crypto: CryptoConfig{MaxFieldLength: 1024},
		Token: TokenConfig{
			AccessTTL:          15 * time.Minute,
			RefreshTTL:         7 * 24 * time.Hour,
			RememberRefreshTTL: 30 * 24 * time.Hour,
			Issuer:             "govault",
		},
		TOTP: TOTPConfig{
			Issuer:       "govault",
			Digits:       6,
			Period:       30,
			Skew:         1,
			SecretMaxLen: 64,
		},
		TwoFactor: TwoFactorConfig{
			BackupCodeCount:  10,
			BackupCodeLength: 10,
			MaxAttempts:      5,
			AttemptWindow:    15 * time.Minute,
			ChallengeTTL:     5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Prefix:  "gv",
			Rules: map[string]ratelimit.Rule{
				"general": {Limit: 300, Window: time.Minute},
				"login":   {Limit: 10, Window: 15 * time.Minute},
			},
			LoginLimiters: []string{"general", "login"},
		},
		Verification: VerificationConfig{TokenTTL: 24 * time.Hour},
		Audit:        AuditConfig{Enabled: true, BufferSize: 256, DropIfFull: true},
		Metrics:      MetricsConfig{Enabled: true},
	}
}

// Validate rejects configurations that must never reach production:
// absence of the signing secret or master key is a hard startup failure
// there, and only a warned fallback in development.
func (c Config) Validate() error {
	if c.Production {
		if c.Crypto.MasterKey == "" {
			return errors.New("goVault: production requires Crypto.MasterKey")
		}
		if c.Token.SigningSecret == "" {
			return errors.New("goVault: production requires Token.SigningSecret")
		}
	}
	if c.TOTP.Digits != 0 && c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("goVault: TOTP digits must be 6 or 8")
	}
	if c.TOTP.Period < 0 || c.TOTP.Skew < 0 {
		return errors.New("goVault: negative TOTP tunables")
	}
	if c.TwoFactor.MaxAttempts < 0 || c.TwoFactor.BackupCodeCount < 0 {
		return errors.New("goVault: negative two-factor tunables")
	}
	return nil
}

// totpDigits, totpPeriod and totpSkew apply the documented defaults at the
// point of use, so a hand-built Config with a zero-value TOTPConfig
// behaves exactly like the presets.
func (c Config) totpDigits() int {
	if c.TOTP.Digits == 8 {
		return 8
	}
	return 6
}

func (c Config) totpPeriod() uint {
	if c.TOTP.Period <= 0 {
		return 30
	}
	return uint(c.TOTP.Period)
}

func (c Config) totpSkew() uint {
	if c.TOTP.Skew <= 0 {
		return 1
	}
	return uint(c.TOTP.Skew)
}

// attemptWindow clamps the rolling brute-force window to [1,1440] minutes
// so a misconfigured (or abused) parameter cannot widen or collapse it.
func (c Config) attemptWindow() time.Duration {
	w := c.TwoFactor.AttemptWindow
	if w <= 0 {
		w = 15 * time.Minute
	}
	if w < minAttemptWindow {
		return minAttemptWindow
	}
	if w > maxAttemptWindow {
		return maxAttemptWindow
	}
	return w
}
