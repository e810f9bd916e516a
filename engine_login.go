package goVault

import (
	"context"
	"errors"

	"github.com/MrEthical07/goVault/fieldcrypt"
	"github.com/MrEthical07/goVault/ratelimit"
)

// Login verifies credentials and either issues a token pair or, when the
// account has two-factor enabled, returns a short-lived challenge to
// complete with [Engine.ConfirmTwoFactorLogin]. Unknown email and wrong
// password are both [ErrInvalidCredentials]; nothing reveals whether the
// address exists.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	if req.Email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	identifier := e.loginIdentifier(ctx, req.Email)
	if err := e.checkLoginLimit(ctx, identifier); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByEmailHash(ctx, fieldcrypt.SearchHash(req.Email))
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		e.metricInc(MetricLoginFailure)
		e.emitSecurity(ctx, EventLoginFailure, SeverityWarning, "", "unknown identifier", nil)
		return nil, ErrInvalidCredentials
	}
	if user.DeletedAt != nil {
		e.metricInc(MetricLoginFailure)
		e.emitSecurity(ctx, EventLoginFailure, SeverityWarning, user.UserID, "soft-deleted account", nil)
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwords.Verify(req.Password, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitSecurity(ctx, EventLoginFailure, SeverityWarning, user.UserID, "password mismatch", nil)
		return nil, ErrInvalidCredentials
	}

	if e.config.RequireVerifiedEmail && !user.EmailVerified {
		e.metricInc(MetricLoginFailure)
		e.emitSecurity(ctx, EventLoginFailure, SeverityInfo, user.UserID, "email not verified", nil)
		return nil, ErrEmailNotVerified
	}

	email := e.decryptField(ctx, user.UserID, user.EmailEncrypted)

	// Second factor sits between password verification and token
	// issuance: with 2FA enabled the password alone never yields tokens.
	if user.TwoFactorEnabled {
		if e.challenges == nil {
			return nil, ErrEngineNotReady
		}
		challengeID, err := e.challenges.Create(ctx, user.UserID, email, req.Remember)
		if err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		e.emitSecurity(ctx, EventLoginSuccess, SeverityInfo, user.UserID, "password accepted, awaiting second factor", nil)
		return &LoginResult{TwoFactorRequired: true, Challenge: challengeID}, nil
	}

	return e.issueTokens(ctx, user.UserID, email, req.Remember)
}

// ConfirmTwoFactorLogin completes a pending login challenge with a TOTP or
// backup code. The challenge is consumed on success; expired or unknown
// challenges are uniformly [ErrChallengeInvalid].
func (e *Engine) ConfirmTwoFactorLogin(ctx context.Context, challengeID string, attempt CodeAttempt) (*LoginResult, error) {
	if e == nil || e.challenges == nil {
		return nil, ErrEngineNotReady
	}

	challenge, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		if errors.Is(err, errChallengeNotFound) {
			return nil, ErrChallengeInvalid
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	if err := e.VerifyTwoFactor(ctx, challenge.UserID, attempt); err != nil {
		return nil, err
	}

	consumed, err := e.challenges.Consume(ctx, challengeID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if !consumed {
		// A concurrent confirmation won; this one does not get tokens.
		return nil, ErrChallengeInvalid
	}

	return e.issueTokens(ctx, challenge.UserID, challenge.Email, challenge.Remember)
}

// Refresh exchanges a valid refresh token for a fresh pair. The remember
// flag embedded at login carries through, so a 30-day session stays a
// 30-day session across refreshes.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		e.emitSecurity(ctx, EventTokenRejected, SeverityWarning, "", "refresh token rejected", nil)
		return nil, ErrUnauthorized
	}

	return e.issueTokens(ctx, claims.UserID, claims.Email, claims.Remember)
}

func (e *Engine) issueTokens(ctx context.Context, userID, email string, remember bool) (*LoginResult, error) {
	access, refresh, err := e.tokens.IssuePair(userID, email, remember)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenIssued)
	e.metricInc(MetricLoginSuccess)
	e.emitSecurity(ctx, EventLoginSuccess, SeverityInfo, userID, "token pair issued", func() map[string]string {
		return map[string]string{"remember": boolString(remember)}
	})

	return &LoginResult{AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) loginIdentifier(ctx context.Context, email string) string {
	if ip := clientIPFromContext(ctx); ip != "" {
		return ip
	}
	if email != "" {
		// Hash rather than raw address so limiter keys never hold PII.
		return fieldcrypt.SearchHash(email)
	}
	return ratelimit.UnknownIdentifier
}

func (e *Engine) checkLoginLimit(ctx context.Context, identifier string) error {
	if e.limiter == nil || !e.config.RateLimit.Enabled || len(e.config.RateLimit.LoginLimiters) == 0 {
		return nil
	}

	res, err := e.CheckRateLimit(ctx, e.config.RateLimit.LoginLimiters, identifier)
	if err != nil {
		// Limiter backend loss fails closed for login.
		return errors.Join(ErrRateLimited, err)
	}
	if !res.Allowed {
		e.metricInc(MetricLoginRateLimited)
		e.emitSecurity(ctx, EventLoginRateLimited, SeverityWarning, "", "login rate limited", func() map[string]string {
			return map[string]string{"identifier": identifier, "limiter": res.Limiter}
		})
		return ErrRateLimited
	}
	return nil
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
