package goVault

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpSecretBytes = 20

// BeginTwoFactorSetup starts enrollment for a user without 2FA. It
// generates a fresh secret and provisioning URI for QR rendering; nothing
// is persisted until [Engine.ConfirmTwoFactorSetup] proves the
// authenticator holds the secret.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.getActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	account := e.decryptField(ctx, user.UserID, user.EmailEncrypted)
	if account == "" {
		account = user.UserID
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.config.TOTP.Issuer,
		AccountName: account,
		Period:      e.config.totpPeriod(),
		SecretSize:  totpSecretBytes,
		Digits:      e.totpDigits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}

	return &TwoFactorSetup{Secret: key.Secret(), URI: key.URL()}, nil
}

// ConfirmTwoFactorSetup completes enrollment: the submitted code must
// validate against the just-generated secret (±1 time step for clock
// drift). On success the secret is encrypted and persisted, the enabled
// timestamps are set, and a fresh batch of single-use backup codes is
// returned. This is the only time the plaintext codes ever exist.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, userID, secret, code string) ([]string, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.getActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if secret == "" || !e.validCodeFormat(code) {
		return nil, ErrValidation
	}

	if err := e.checkTwoFactorBudget(ctx, userID); err != nil {
		return nil, err
	}

	ok, err := totp.ValidateCustom(code, secret, time.Now(), e.totpOpts())
	if err != nil || !ok {
		if err := e.recordTwoFactorFailure(ctx, userID, CodeTOTP); err != nil {
			return nil, err
		}
		return nil, ErrTwoFactorInvalid
	}
	e.recordTwoFactorSuccess(ctx, userID, CodeTOTP)

	encrypted, err := e.cipher.Encrypt(secret, e.config.TOTP.SecretMaxLen)
	if err != nil {
		return nil, ErrCryptoFailure
	}

	now := time.Now()
	if err := e.users.EnableTwoFactor(ctx, userID, encrypted, now); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	codes, err := e.replaceBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.emitSecurity(ctx, EventTwoFactorEnabled, SeverityInfo, userID, "two-factor enabled", nil)
	e.emitSecurity(ctx, EventBackupCodesIssued, SeverityInfo, userID, "backup codes issued", nil)
	e.emitAuditEntry(ctx, "users", userID, "update", "two_factor_enabled=false", "two_factor_enabled=true", userID)

	return codes, nil
}

// DisableTwoFactor turns 2FA off. Re-authentication demands a fresh TOTP
// code; a backup code is not accepted here. The secret and enabled
// timestamps are cleared and every backup code is deleted.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, code string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.getActiveUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotConfigured
	}

	if err := e.verifyFreshTOTP(ctx, user, code); err != nil {
		return err
	}

	if err := e.users.DisableTwoFactor(ctx, userID); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.emitSecurity(ctx, EventTwoFactorDisabled, SeverityWarning, userID, "two-factor disabled", nil)
	e.emitAuditEntry(ctx, "users", userID, "update", "two_factor_enabled=true", "two_factor_enabled=false", userID)

	return nil
}

// VerifyTwoFactor checks a login-time code submission: either a TOTP code
// for the current or adjacent time step, or an unused backup code. Both
// paths share the brute-force budget and the append-only attempt log.
func (e *Engine) VerifyTwoFactor(ctx context.Context, userID string, attempt CodeAttempt) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.getActiveUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return ErrTwoFactorNotConfigured
	}

	if err := e.checkTwoFactorBudget(ctx, userID); err != nil {
		return err
	}

	switch attempt.Type {
	case CodeTOTP:
		if !e.validCodeFormat(attempt.Code) {
			return ErrValidation
		}
		secret, err := e.decryptSecret(ctx, userID, user.TwoFactorSecret)
		if err != nil {
			return err
		}
		ok, err := totp.ValidateCustom(attempt.Code, secret, time.Now(), e.totpOpts())
		if err != nil || !ok {
			if err := e.recordTwoFactorFailure(ctx, userID, CodeTOTP); err != nil {
				return err
			}
			return ErrTwoFactorInvalid
		}
		e.recordTwoFactorSuccess(ctx, userID, CodeTOTP)

	case CodeBackup:
		if err := e.consumeBackupCode(ctx, userID, attempt.Code); err != nil {
			return err
		}

	default:
		return ErrValidation
	}

	if err := e.users.TouchTwoFactorUsed(ctx, userID, time.Now()); err != nil {
		log.Print("goVault: two-factor last-used update failed")
	}
	return nil
}

// checkTwoFactorBudget denies further attempts once the user/IP pair has
// accumulated too many recent failures. The denial is fatal for this
// attempt only, never for the account.
func (e *Engine) checkTwoFactorBudget(ctx context.Context, userID string) error {
	window := e.config.attemptWindow()
	failures, err := e.users.CountRecentTwoFactorFailures(ctx, userID, clientIPFromContext(ctx), window)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if failures >= e.config.TwoFactor.MaxAttempts {
		e.metricInc(MetricTwoFactorRateLimited)
		e.emitSecurity(ctx, EventTwoFactorDenied, SeverityCritical, userID, "two-factor attempt budget exhausted", func() map[string]string {
			return map[string]string{"window": window.String()}
		})
		return ErrTwoFactorRateLimited
	}
	return nil
}

// verifyFreshTOTP gates sensitive 2FA mutations (disable, backup-code
// regeneration) behind a current TOTP code.
func (e *Engine) verifyFreshTOTP(ctx context.Context, user UserRecord, code string) error {
	if !e.validCodeFormat(code) {
		return ErrValidation
	}
	if err := e.checkTwoFactorBudget(ctx, user.UserID); err != nil {
		return err
	}

	secret, err := e.decryptSecret(ctx, user.UserID, user.TwoFactorSecret)
	if err != nil {
		return err
	}
	ok, err := totp.ValidateCustom(code, secret, time.Now(), e.totpOpts())
	if err != nil || !ok {
		if err := e.recordTwoFactorFailure(ctx, user.UserID, CodeTOTP); err != nil {
			return err
		}
		return ErrTwoFactorInvalid
	}
	e.recordTwoFactorSuccess(ctx, user.UserID, CodeTOTP)
	return nil
}

// recordTwoFactorFailure appends a failed attempt. Recording failures is
// load-bearing for brute-force counting, so a store error fails the
// verification closed.
func (e *Engine) recordTwoFactorFailure(ctx context.Context, userID string, codeType CodeType) error {
	e.metricInc(MetricTwoFactorFailure)
	if err := e.users.RecordTwoFactorAttempt(ctx, e.buildAttempt(ctx, userID, codeType, false)); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	e.emitSecurity(ctx, EventTwoFactorAttempted, SeverityWarning, userID, "two-factor attempt failed", func() map[string]string {
		return map[string]string{"code_type": string(codeType)}
	})
	return nil
}

// recordTwoFactorSuccess appends a successful attempt, best-effort: a
// store hiccup here must not undo an otherwise valid verification.
func (e *Engine) recordTwoFactorSuccess(ctx context.Context, userID string, codeType CodeType) {
	e.metricInc(MetricTwoFactorSuccess)
	if err := e.users.RecordTwoFactorAttempt(ctx, e.buildAttempt(ctx, userID, codeType, true)); err != nil {
		log.Print("goVault: two-factor attempt record failed")
	}
	e.emitSecurity(ctx, EventTwoFactorAttempted, SeverityInfo, userID, "two-factor attempt succeeded", func() map[string]string {
		return map[string]string{"code_type": string(codeType)}
	})
}

func (e *Engine) buildAttempt(ctx context.Context, userID string, codeType CodeType, success bool) TwoFactorAttempt {
	return TwoFactorAttempt{
		UserID:      userID,
		IPAddress:   clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		Success:     success,
		CodeType:    codeType,
		AttemptedAt: time.Now(),
	}
}

func (e *Engine) getActiveUser(ctx context.Context, userID string) (UserRecord, error) {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, errors.Join(ErrStoreUnavailable, err)
	}
	if user.DeletedAt != nil {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (e *Engine) validCodeFormat(code string) bool {
	if len(code) != e.config.totpDigits() {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (e *Engine) totpDigits() otp.Digits {
	if e.config.totpDigits() == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

func (e *Engine) totpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    e.config.totpPeriod(),
		Skew:      e.config.totpSkew(),
		Digits:    e.totpDigits(),
		Algorithm: otp.AlgorithmSHA1,
	}
}
