package goVault

import "errors"

var (
	// ErrValidation reports malformed input: bad email, bad code format,
	// non-UUID identifiers.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidCredentials is the uniform authentication failure. Unknown
	// email and wrong password are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized reports a missing, malformed, forged or expired
	// access token. The cause is never distinguished to the caller.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPermissionDenied reports a valid identity with insufficient
	// rights, typically an ownership mismatch.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRateLimited reports an exhausted request quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrAccountExists is returned by registration for a duplicate email.
	ErrAccountExists = errors.New("account already exists")
	// ErrUserNotFound is returned by providers when no matching,
	// non-deleted user exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailNotVerified blocks login when verified email is required.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrEmailDeliveryFailed surfaces a failed send from the email
	// collaborator. The triggering state change is persisted regardless.
	ErrEmailDeliveryFailed = errors.New("email delivery failed")
	// ErrCryptoFailure reports a field decryption or tag verification
	// failure.
	ErrCryptoFailure = errors.New("decryption failure")

	// ErrTwoFactorNotConfigured is returned when verification is requested
	// for a user without 2FA enabled.
	ErrTwoFactorNotConfigured = errors.New("two-factor not configured")
	// ErrTwoFactorAlreadyEnabled rejects setup for a user already enrolled.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorInvalid reports a well-formed but wrong code.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorRateLimited reports too many recent failed attempts for
	// the user/IP pair. Fatal for the attempt, not for the account.
	ErrTwoFactorRateLimited = errors.New("too many two-factor attempts")
	// ErrBackupCodeUsed reports a backup code that was valid but already
	// consumed.
	ErrBackupCodeUsed = errors.New("backup code already used")

	// ErrChallengeInvalid reports an unknown or expired login challenge.
	ErrChallengeInvalid = errors.New("login challenge invalid")
	// ErrVerificationInvalid reports an unknown, expired or already-used
	// email verification token.
	ErrVerificationInvalid = errors.New("verification token invalid")

	// ErrStoreUnavailable wraps persistence failures. Raw driver errors
	// never cross the engine boundary.
	ErrStoreUnavailable = errors.New("persistence backend unavailable")
	// ErrEngineNotReady reports use of an engine missing a required
	// collaborator.
	ErrEngineNotReady = errors.New("engine not initialized")
)
