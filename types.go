package goVault

import (
	"context"
	"time"
)

// UserRecord is the account record exchanged with a [UserProvider].
// Email, name and phone are stored as fieldcrypt envelopes; EmailHash is
// the deterministic search hash used for lookups. Encrypted columns are
// never queried by ciphertext.
type UserRecord struct {
	UserID         string
	EmailEncrypted string
	EmailHash      string
	NameEncrypted  string
	PhoneEncrypted string
	PasswordHash   string

	EmailVerified bool

	TwoFactorEnabled   bool
	TwoFactorSecret    string // fieldcrypt envelope, empty when disabled
	TwoFactorEnabledAt *time.Time
	TwoFactorLastUsed  *time.Time

	CreatedAt time.Time
	DeletedAt *time.Time // soft delete marker; hard deletes never happen
}

// CreateUserInput is the input for [UserProvider.CreateUser]. All PII
// fields arrive already encrypted.
type CreateUserInput struct {
	EmailEncrypted string
	EmailHash      string
	NameEncrypted  string
	PhoneEncrypted string
	PasswordHash   string
}

// BackupCodeRecord stores one single-use recovery credential. Only the
// SHA-256 hash is retained; UsedAt transitions from nil to non-nil exactly
// once.
type BackupCodeRecord struct {
	Hash      [32]byte
	CreatedAt time.Time
	ExpiresAt *time.Time
	UsedAt    *time.Time
}

// CodeType tags the two-factor code variant presented at verification.
type CodeType string

const (
	// CodeTOTP is a 6-digit time-based code from the authenticator app.
	CodeTOTP CodeType = "totp"
	// CodeBackup is a single-use recovery code.
	CodeBackup CodeType = "backup"
)

// CodeAttempt is a tagged two-factor code submission. Using one variant
// type instead of parallel flags keeps attempt logging and brute-force
// counting on a single path.
type CodeAttempt struct {
	Type CodeType
	Code string
}

// TOTPAttempt wraps a 6-digit authenticator code.
func TOTPAttempt(code string) CodeAttempt {
	return CodeAttempt{Type: CodeTOTP, Code: code}
}

// BackupAttempt wraps a recovery code.
func BackupAttempt(code string) CodeAttempt {
	return CodeAttempt{Type: CodeBackup, Code: code}
}

// TwoFactorAttempt is the immutable append-only record of one code
// verification, used for rolling-window brute-force counting and audit.
// It is never updated or deleted by normal flow.
type TwoFactorAttempt struct {
	UserID      string
	IPAddress   string
	UserAgent   string
	Success     bool
	CodeType    CodeType
	AttemptedAt time.Time
}

// UserProvider is the persistence collaborator callers implement to
// integrate the engine with their relational store. Implementations must
// use parameterized queries throughout and map "no row" conditions to
// [ErrUserNotFound].
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	GetUserByEmailHash(ctx context.Context, emailHash string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	SoftDeleteUser(ctx context.Context, userID string, at time.Time) error

	MarkEmailVerified(ctx context.Context, userID string) error
	CreateEmailVerification(ctx context.Context, userID string, tokenHash [32]byte, expiresAt time.Time) error
	// ConsumeEmailVerification atomically marks the matching unexpired
	// token as used (used_at IS NULL guard). consumed=false with a
	// non-empty userID means another request won the race.
	ConsumeEmailVerification(ctx context.Context, tokenHash [32]byte) (userID string, consumed bool, err error)

	EnableTwoFactor(ctx context.Context, userID, encryptedSecret string, enabledAt time.Time) error
	// DisableTwoFactor clears the secret and enabled timestamps and
	// deletes every backup code for the user.
	DisableTwoFactor(ctx context.Context, userID string) error
	TouchTwoFactorUsed(ctx context.Context, userID string, usedAt time.Time) error

	GetBackupCodes(ctx context.Context, userID string) ([]BackupCodeRecord, error)
	// ReplaceBackupCodes deletes all existing codes for the user and
	// inserts the new batch in one transaction.
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error
	// ConsumeBackupCode marks the matching unused, unexpired code as used.
	// The update is conditioned on used_at IS NULL so two concurrent
	// consumers race safely and exactly one sees consumed=true.
	ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (consumed bool, err error)

	RecordTwoFactorAttempt(ctx context.Context, attempt TwoFactorAttempt) error
	// CountRecentTwoFactorFailures counts failed attempts for the user OR
	// the IP within the rolling window ending now.
	CountRecentTwoFactorFailures(ctx context.Context, userID, ip string, window time.Duration) (int, error)

	// HasActiveSubscription reports an active, non-expired subscription.
	// Callers treat any error as "no subscription" (fail closed).
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
}

// EmailSender is the external delivery collaborator. The engine never
// depends on synchronous delivery for its own state correctness.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html, text string) error
}

// RegisterRequest is the input for [Engine.Register].
type RegisterRequest struct {
	Email    string
	Name     string
	Phone    string
	Password string
}

// RegisterResult is returned by [Engine.Register]. VerificationSent is
// false when the email collaborator failed; the account exists either way.
type RegisterResult struct {
	UserID            string
	VerificationSent  bool
	VerificationToken string // returned only when no EmailSender is wired
}

// LoginRequest is the input for [Engine.Login]. Remember extends the
// refresh token TTL from 7 to 30 days.
type LoginRequest struct {
	Email    string
	Password string
	Remember bool
}

// LoginResult carries either a token pair or, when the account has 2FA
// enabled, a short-lived challenge to complete with
// [Engine.ConfirmTwoFactorLogin].
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	TwoFactorRequired bool
	Challenge         string
}

// TwoFactorSetup is returned by [Engine.BeginTwoFactorSetup]. The secret
// exists only in this response until setup is confirmed.
type TwoFactorSetup struct {
	Secret string // base32
	URI    string // otpauth:// provisioning payload for QR rendering
}

// Principal is the authenticated identity attached to a request after
// access-token verification.
type Principal struct {
	UserID   string
	Email    string
	Remember bool
}
