package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL          = 15 * time.Minute
	defaultRefreshTTL         = 7 * 24 * time.Hour
	defaultRememberRefreshTTL = 30 * 24 * time.Hour

	useAccess  = "access"
	useRefresh = "refresh"
)

// ErrTokenInvalid is the uniform verification failure. Bad signature,
// malformed token, wrong token class and expiry are deliberately not
// distinguished to the caller.
var ErrTokenInvalid = errors.New("token: invalid token")

// Config holds signing material and TTL tunables for a [Manager].
type Config struct {
	// Secret signs and verifies all tokens. Required.
	Secret []byte

	// AccessTTL defaults to 15 minutes.
	AccessTTL time.Duration

	// RefreshTTL defaults to 7 days; RememberRefreshTTL (used when the
	// login requested "remember me") defaults to 30 days.
	RefreshTTL         time.Duration
	RememberRefreshTTL time.Duration

	Issuer string

	// Now overrides the clock, for expiry tests.
	Now func() time.Time
}

// Claims is the signed claim set carried by both token classes. Remember is
// embedded in the refresh token itself so a later refresh preserves the
// original remember-me semantics.
type Claims struct {
	UserID   string `json:"uid"`
	Email    string `json:"email,omitempty"`
	Remember bool   `json:"remember,omitempty"`
	TokenUse string `json:"use"`
	jwt.RegisteredClaims
}

// Manager issues and verifies session tokens. Construct once, share freely.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and applies TTL defaults.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.RememberRefreshTTL <= 0 {
		cfg.RememberRefreshTTL = defaultRememberRefreshTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// IssueAccess mints a short-lived access token.
func (m *Manager) IssueAccess(userID, email string, remember bool) (string, error) {
	return m.issue(userID, email, remember, useAccess, m.config.AccessTTL)
}

// IssueRefresh mints a refresh token. The remember flag selects the longer
// TTL and is recorded in the claims.
func (m *Manager) IssueRefresh(userID, email string, remember bool) (string, error) {
	ttl := m.config.RefreshTTL
	if remember {
		ttl = m.config.RememberRefreshTTL
	}
	return m.issue(userID, email, remember, useRefresh, ttl)
}

// IssuePair mints a matched access+refresh pair for one login.
func (m *Manager) IssuePair(userID, email string, remember bool) (access, refresh string, err error) {
	access, err = m.IssueAccess(userID, email, remember)
	if err != nil {
		return "", "", err
	}
	refresh, err = m.IssueRefresh(userID, email, remember)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (m *Manager) issue(userID, email string, remember bool, use string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:   userID,
		Email:    email,
		Remember: remember,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.config.Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// VerifyAccess verifies signature and expiry of an access token.
func (m *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, useAccess)
}

// VerifyRefresh verifies signature and expiry of a refresh token.
func (m *Manager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, useRefresh)
}

func (m *Manager) verify(tokenStr, use string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		tokenStr,
		claims,
		func(*jwt.Token) (interface{}, error) { return m.config.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenUse != use || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
