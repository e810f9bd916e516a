package goVault

import (
	"context"
	"errors"

	"github.com/MrEthical07/goVault/internal"
)

// RequestEmailVerification issues a fresh verification token for an
// unverified account, typically behind a "resend email" button. The
// previous token stays valid until it expires.
func (e *Engine) RequestEmailVerification(ctx context.Context, userID string) (*RegisterResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.getActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.EmailVerified {
		return nil, ErrValidation
	}

	email := e.decryptField(ctx, user.UserID, user.EmailEncrypted)
	if email == "" {
		return nil, ErrCryptoFailure
	}

	result := &RegisterResult{UserID: user.UserID}
	if err := e.issueVerification(ctx, user.UserID, email, result); err != nil {
		return result, err
	}
	return result, nil
}

// VerifyEmail consumes a verification token and marks the address
// verified. Two concurrent submissions of the same token both succeed
// while the verified flag flips exactly once; the provider's conditional
// consume decides the winner and the loser re-reads the outcome.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrVerificationInvalid
	}

	hash := internal.HashVerificationToken(token)
	userID, consumed, err := e.users.ConsumeEmailVerification(ctx, hash)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	if !consumed {
		if userID == "" {
			e.emitSecurity(ctx, EventVerificationRejected, SeverityWarning, "", "unknown or expired verification token", nil)
			return ErrVerificationInvalid
		}
		// Lost the race to a concurrent request for the same live token.
		// The winner owns the flag flip, which may still be in flight, so
		// the loser reports idempotent success as long as the account
		// exists.
		if _, err := e.users.GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return ErrVerificationInvalid
			}
			return errors.Join(ErrStoreUnavailable, err)
		}
		return nil
	}

	if err := e.users.MarkEmailVerified(ctx, userID); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricEmailVerified)
	e.emitSecurity(ctx, EventEmailVerified, SeverityInfo, userID, "email verified", nil)
	e.emitAuditEntry(ctx, "users", userID, "update", "email_verified=false", "email_verified=true", userID)

	return nil
}
