package goVault

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MrEthical07/goVault/fieldcrypt"
	"github.com/MrEthical07/goVault/internal"
)

// Matches the hasher's own lower bound so validation fails before any
// hashing work starts.
const minPasswordLength = 10

// Register creates an account with all PII encrypted at rest and kicks
// off email verification. Account creation and email delivery are
// deliberately decoupled: if the sender fails, the account stays and
// [ErrEmailDeliveryFailed] tells the caller to offer a resend.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(email) {
		return nil, ErrValidation
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrValidation
	}

	maxLen := e.config.Crypto.MaxFieldLength
	input := CreateUserInput{EmailHash: fieldcrypt.SearchHash(email)}

	var err error
	if input.EmailEncrypted, err = e.cipher.Encrypt(email, maxLen); err != nil {
		return nil, ErrCryptoFailure
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		if input.NameEncrypted, err = e.cipher.Encrypt(name, maxLen); err != nil {
			return nil, ErrCryptoFailure
		}
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		if input.PhoneEncrypted, err = e.cipher.Encrypt(phone, maxLen); err != nil {
			return nil, ErrCryptoFailure
		}
	}
	if input.PasswordHash, err = e.passwords.Hash(req.Password); err != nil {
		return nil, err
	}

	user, err := e.users.CreateUser(ctx, input)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricRegistration)
	e.emitSecurity(ctx, EventRegistration, SeverityInfo, user.UserID, "account created", nil)
	e.emitAuditEntry(ctx, "users", user.UserID, "create", "", "email_hash="+input.EmailHash, user.UserID)

	result := &RegisterResult{UserID: user.UserID}
	if err := e.issueVerification(ctx, user.UserID, email, result); err != nil {
		return result, err
	}
	return result, nil
}

// SoftDelete marks the account deleted. The row and its audit trail
// remain; login and every engine operation treat the account as gone.
func (e *Engine) SoftDelete(ctx context.Context, userID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	if _, err := e.getActiveUser(ctx, userID); err != nil {
		return err
	}

	if err := e.users.SoftDeleteUser(ctx, userID, time.Now()); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.emitSecurity(ctx, EventAccountSoftDeleted, SeverityWarning, userID, "account soft-deleted", nil)
	e.emitAuditEntry(ctx, "users", userID, "update", "deleted_at=null", "deleted_at=now", userID)

	return nil
}

// issueVerification creates a verification token and attempts delivery.
// Only the token hash is persisted. Without an EmailSender the plaintext
// token is handed back so the caller can deliver it by other means.
func (e *Engine) issueVerification(ctx context.Context, userID, email string, result *RegisterResult) error {
	token, hash, err := internal.NewVerificationToken()
	if err != nil {
		return ErrCryptoFailure
	}

	ttl := e.config.Verification.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := e.users.CreateEmailVerification(ctx, userID, hash, time.Now().Add(ttl)); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	if e.email == nil {
		result.VerificationToken = token
		return nil
	}

	subject := "Verify your email address"
	html := fmt.Sprintf("<p>Your verification code is <strong>%s</strong>. It expires in %s.</p>", token, ttl)
	text := fmt.Sprintf("Your verification code is %s. It expires in %s.", token, ttl)
	if err := e.email.SendEmail(ctx, email, subject, html, text); err != nil {
		log.Print("goVault: verification email delivery failed")
		return ErrEmailDeliveryFailed
	}
	result.VerificationSent = true
	return nil
}

// validEmail applies the minimal structural check the engine relies on.
// Deliverability is the verification email's job, not a parser's.
func validEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.IndexByte(email[at+1:], '@') != -1 {
		return false
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	return strings.IndexByte(email[at+1:], '.') > 0
}
