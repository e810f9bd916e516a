package goVault

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goVault/internal"
)

// RegenerateBackupCodes invalidates every existing backup code and
// returns a fresh batch. The operation demands a fresh TOTP code; a
// backup code cannot mint its own replacements.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.getActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorNotConfigured
	}

	if err := e.verifyFreshTOTP(ctx, user, code); err != nil {
		return nil, err
	}

	codes, err := e.replaceBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitSecurity(ctx, EventBackupCodesRegenerated, SeverityWarning, userID, "backup codes regenerated", nil)
	e.emitAuditEntry(ctx, "backup_codes", userID, "replace", "", "", userID)

	return codes, nil
}

// replaceBackupCodes generates a batch, persists the hashes wholesale and
// returns the plaintext codes. Plaintext never touches storage.
func (e *Engine) replaceBackupCodes(ctx context.Context, userID string) ([]string, error) {
	count := e.config.TwoFactor.BackupCodeCount
	if count <= 0 {
		count = 10
	}
	length := e.config.TwoFactor.BackupCodeLength
	if length <= 0 {
		length = 10
	}

	now := time.Now()
	codes := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(length)
		if err != nil {
			return nil, ErrCryptoFailure
		}
		codes = append(codes, code)
		records = append(records, BackupCodeRecord{
			Hash:      internal.BackupCodeHash(userID, internal.CanonicalBackupCode(code)),
			CreatedAt: now,
		})
	}

	if err := e.users.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return codes, nil
}

// consumeBackupCode burns one recovery code. The conditional consume in
// the provider guarantees a code verifies at most once, even under
// concurrent submissions; a code that matched but was already burned is
// reported distinctly so the UI can say so.
func (e *Engine) consumeBackupCode(ctx context.Context, userID, code string) error {
	canonical := internal.CanonicalBackupCode(code)
	if canonical == "" {
		return ErrValidation
	}

	hash := internal.BackupCodeHash(userID, canonical)
	consumed, err := e.users.ConsumeBackupCode(ctx, userID, hash)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if consumed {
		e.metricInc(MetricBackupCodeUsed)
		e.recordTwoFactorSuccess(ctx, userID, CodeBackup)
		e.emitSecurity(ctx, EventBackupCodeConsumed, SeverityWarning, userID, "backup code consumed", nil)
		return nil
	}

	e.metricInc(MetricBackupCodeFailed)
	if err := e.recordTwoFactorFailure(ctx, userID, CodeBackup); err != nil {
		return err
	}

	records, err := e.users.GetBackupCodes(ctx, userID)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	now := time.Now()
	for _, rec := range records {
		if rec.Hash != hash {
			continue
		}
		if rec.UsedAt != nil {
			e.emitSecurity(ctx, EventBackupCodeReused, SeverityCritical, userID, "used backup code presented again", nil)
			return ErrBackupCodeUsed
		}
		if rec.ExpiresAt != nil && now.After(*rec.ExpiresAt) {
			return ErrTwoFactorInvalid
		}
	}
	return ErrTwoFactorInvalid
}
