package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	goVault "github.com/MrEthical07/goVault"
)

const uniqueViolation = "23505"

// Provider implements [goVault.UserProvider] on a pgx connection pool.
type Provider struct {
	pool *pgxpool.Pool
}

// NewProvider wraps an existing pool. The caller owns the pool lifecycle.
func NewProvider(pool *pgxpool.Pool) *Provider {
	return &Provider{pool: pool}
}

const userColumns = `id, email_encrypted, email_hash,
	COALESCE(name_encrypted, ''), COALESCE(phone_encrypted, ''),
	password_hash, email_verified,
	COALESCE(totp_secret, ''), totp_enabled_at, totp_last_used,
	created_at, deleted_at`

func scanUser(row pgx.Row) (goVault.UserRecord, error) {
	var u goVault.UserRecord
	err := row.Scan(
		&u.UserID, &u.EmailEncrypted, &u.EmailHash,
		&u.NameEncrypted, &u.PhoneEncrypted,
		&u.PasswordHash, &u.EmailVerified,
		&u.TwoFactorSecret, &u.TwoFactorEnabledAt, &u.TwoFactorLastUsed,
		&u.CreatedAt, &u.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return goVault.UserRecord{}, goVault.ErrUserNotFound
		}
		return goVault.UserRecord{}, err
	}
	u.TwoFactorEnabled = u.TwoFactorEnabledAt != nil && u.TwoFactorSecret != ""
	return u, nil
}

func (p *Provider) GetUserByID(ctx context.Context, userID string) (goVault.UserRecord, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (p *Provider) GetUserByEmailHash(ctx context.Context, emailHash string) (goVault.UserRecord, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email_hash = $1`, emailHash)
	return scanUser(row)
}

func (p *Provider) CreateUser(ctx context.Context, input goVault.CreateUserInput) (goVault.UserRecord, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO users (email_encrypted, email_hash, name_encrypted, phone_encrypted, password_hash)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		RETURNING id, created_at`,
		input.EmailEncrypted, input.EmailHash, input.NameEncrypted, input.PhoneEncrypted, input.PasswordHash,
	)

	user := goVault.UserRecord{
		EmailEncrypted: input.EmailEncrypted,
		EmailHash:      input.EmailHash,
		NameEncrypted:  input.NameEncrypted,
		PhoneEncrypted: input.PhoneEncrypted,
		PasswordHash:   input.PasswordHash,
	}
	if err := row.Scan(&user.UserID, &user.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return goVault.UserRecord{}, goVault.ErrAccountExists
		}
		return goVault.UserRecord{}, err
	}
	return user, nil
}

func (p *Provider) SoftDeleteUser(ctx context.Context, userID string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE users SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return goVault.ErrUserNotFound
	}
	return nil
}

func (p *Provider) MarkEmailVerified(ctx context.Context, userID string) error {
	_, err := p.pool.Exec(ctx, `UPDATE users SET email_verified = TRUE WHERE id = $1`, userID)
	return err
}

func (p *Provider) CreateEmailVerification(ctx context.Context, userID string, tokenHash [32]byte, expiresAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO email_verifications (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)`,
		tokenHash[:], userID, expiresAt,
	)
	return err
}

// ConsumeEmailVerification marks the token used via a conditional update,
// so exactly one concurrent consumer wins. A loser still learns the owning
// user id so the engine can report idempotent success.
func (p *Provider) ConsumeEmailVerification(ctx context.Context, tokenHash [32]byte) (string, bool, error) {
	var userID string
	err := p.pool.QueryRow(ctx, `
		UPDATE email_verifications
		SET used_at = now()
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()
		RETURNING user_id`,
		tokenHash[:],
	).Scan(&userID)
	if err == nil {
		return userID, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, err
	}

	err = p.pool.QueryRow(ctx, `
		SELECT user_id FROM email_verifications
		WHERE token_hash = $1 AND expires_at > now()`,
		tokenHash[:],
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, false, nil
}

func (p *Provider) EnableTwoFactor(ctx context.Context, userID, encryptedSecret string, enabledAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE users SET totp_secret = $2, totp_enabled_at = $3, totp_last_used = NULL
		WHERE id = $1`,
		userID, encryptedSecret, enabledAt,
	)
	return err
}

// DisableTwoFactor clears the secret and removes every backup code in one
// transaction, so a half-disabled account is never observable.
func (p *Provider) DisableTwoFactor(ctx context.Context, userID string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE users SET totp_secret = NULL, totp_enabled_at = NULL, totp_last_used = NULL
		WHERE id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Provider) TouchTwoFactorUsed(ctx context.Context, userID string, usedAt time.Time) error {
	_, err := p.pool.Exec(ctx, `UPDATE users SET totp_last_used = $2 WHERE id = $1`, userID, usedAt)
	return err
}

func (p *Provider) GetBackupCodes(ctx context.Context, userID string) ([]goVault.BackupCodeRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT code_hash, created_at, expires_at, used_at
		FROM backup_codes WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []goVault.BackupCodeRecord
	for rows.Next() {
		var rec goVault.BackupCodeRecord
		var hash []byte
		if err := rows.Scan(&hash, &rec.CreatedAt, &rec.ExpiresAt, &rec.UsedAt); err != nil {
			return nil, err
		}
		copy(rec.Hash[:], hash)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (p *Provider) ReplaceBackupCodes(ctx context.Context, userID string, codes []goVault.BackupCodeRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, code := range codes {
		batch.Queue(`
			INSERT INTO backup_codes (user_id, code_hash, created_at, expires_at)
			VALUES ($1, $2, $3, $4)`,
			userID, code.Hash[:], code.CreatedAt, code.ExpiresAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ConsumeBackupCode burns one code with a used_at IS NULL guard so a code
// verifies at most once regardless of concurrent submissions.
func (p *Provider) ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE backup_codes SET used_at = now()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
		  AND (expires_at IS NULL OR expires_at > now())`,
		userID, hash[:],
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Provider) RecordTwoFactorAttempt(ctx context.Context, attempt goVault.TwoFactorAttempt) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO two_factor_attempts (user_id, ip_address, user_agent, success, code_type, attempted_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6)`,
		attempt.UserID, attempt.IPAddress, attempt.UserAgent, attempt.Success, string(attempt.CodeType), attempt.AttemptedAt,
	)
	return err
}

// CountRecentTwoFactorFailures counts failures by user or source IP in the
// rolling window. The window binds as whole minutes through
// make_interval, never by string assembly.
func (p *Provider) CountRecentTwoFactorFailures(ctx context.Context, userID, ip string, window time.Duration) (int, error) {
	minutes := int(window.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT count(*) FROM two_factor_attempts
		WHERE success = FALSE
		  AND attempted_at > now() - make_interval(mins => $3)
		  AND (user_id = $1 OR ($2 <> '' AND ip_address = $2))`,
		userID, ip, minutes,
	).Scan(&count)
	return count, err
}

func (p *Provider) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE user_id = $1 AND status = 'active'
			  AND (expires_at IS NULL OR expires_at > now())
		)`,
		userID,
	).Scan(&active)
	return active, err
}
