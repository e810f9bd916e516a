package goVault

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/MrEthical07/goVault/fieldcrypt"
	"github.com/MrEthical07/goVault/password"
	"github.com/MrEthical07/goVault/ratelimit"
	"github.com/MrEthical07/goVault/token"
)

// Engine coordinates the authentication and data-protection subsystem.
// All collaborators are injected at construction; the engine holds no
// module-level state and is safe for concurrent use.
type Engine struct {
	config Config

	cipher     *fieldcrypt.Cipher
	tokens     *token.Manager
	passwords  *password.Hasher
	limiter    *ratelimit.Limiter
	challenges *loginChallengeStore
	users      UserProvider
	email      EmailSender
	events     SecurityEventStore
	audit      *auditDispatcher
	metrics    *Metrics
}

// Close drains the audit dispatcher. Call once at shutdown.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events shed by the dispatcher under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// Authenticate verifies an access token and returns the request principal.
// Beyond signature and expiry, the embedded user id must be a syntactically
// valid UUID so forged claims never reach a query layer. Every failure is
// the uniform [ErrUnauthorized].
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		e.emitSecurity(ctx, EventTokenRejected, SeverityWarning, "", "access token rejected", nil)
		return nil, ErrUnauthorized
	}
	if uuid.Validate(claims.UserID) != nil {
		e.metricInc(MetricTokenRejected)
		e.emitSecurity(ctx, EventTokenRejected, SeverityWarning, "", "malformed user id in claims", nil)
		return nil, ErrUnauthorized
	}

	return &Principal{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Remember: claims.Remember,
	}, nil
}

// AuthorizeOwnership checks that the principal owns the resource. A nil
// owner means the resource is not yet attributable and access is allowed;
// a malformed owner id is rejected outright.
func (e *Engine) AuthorizeOwnership(ctx context.Context, principal *Principal, resourceOwnerID *string) error {
	if principal == nil {
		return ErrUnauthorized
	}
	if resourceOwnerID == nil || *resourceOwnerID == "" {
		return nil
	}
	if uuid.Validate(*resourceOwnerID) != nil {
		e.metricInc(MetricOwnershipDenied)
		e.emitSecurity(ctx, EventOwnershipDenied, SeverityWarning, principal.UserID, "malformed resource owner id", nil)
		return ErrPermissionDenied
	}
	if *resourceOwnerID != principal.UserID {
		e.metricInc(MetricOwnershipDenied)
		e.emitSecurity(ctx, EventOwnershipDenied, SeverityWarning, principal.UserID, "resource owner mismatch", nil)
		return ErrPermissionDenied
	}
	return nil
}

// RequireSubscription reports whether the user holds an active,
// non-expired subscription. Lookup failures fail closed.
func (e *Engine) RequireSubscription(ctx context.Context, userID string) bool {
	if e == nil || e.users == nil {
		return false
	}
	active, err := e.users.HasActiveSubscription(ctx, userID)
	if err != nil || !active {
		e.metricInc(MetricSubscriptionDenied)
		e.emitSecurity(ctx, EventSubscriptionDenied, SeverityInfo, userID, "subscription check denied", nil)
		return false
	}
	return true
}

// CheckRateLimit evaluates the named limiters for an identifier. Denials
// are logged with the endpoint and identifier.
func (e *Engine) CheckRateLimit(ctx context.Context, names []string, identifier string) (ratelimit.Result, error) {
	if e == nil {
		return ratelimit.Result{}, ErrEngineNotReady
	}
	if e.limiter == nil || !e.config.RateLimit.Enabled {
		return ratelimit.Result{Allowed: true}, nil
	}

	res, err := e.limiter.CheckMultiple(ctx, names, identifier)
	if err != nil {
		return ratelimit.Result{}, err
	}
	if !res.Allowed {
		e.emitSecurity(ctx, EventRateLimitExceeded, SeverityWarning, "", "rate limit exceeded", func() map[string]string {
			return map[string]string{
				"limiter":    res.Limiter,
				"identifier": identifier,
			}
		})
	}
	return res, nil
}

// SecurityEvents is the operator query surface over recorded security
// events. It requires a wired [SecurityEventStore].
func (e *Engine) SecurityEvents(ctx context.Context, filter SecurityEventFilter) ([]SecurityEvent, error) {
	if e == nil || e.events == nil {
		return nil, ErrEngineNotReady
	}
	events, err := e.events.FindSecurityEvents(ctx, filter)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return events, nil
}

// decryptField resolves a stored PII value for display. Legacy plaintext
// falls back to the raw stored value (logged, counted); a hard decryption
// failure on a display field degrades to the raw value as well, matching
// migration behavior. Never use this for secrets.
func (e *Engine) decryptField(ctx context.Context, userID, stored string) string {
	if stored == "" {
		return ""
	}
	plaintext, legacy, err := e.cipher.DecryptCompat(stored)
	if legacy {
		e.metricInc(MetricDecryptFallback)
		e.emitSecurity(ctx, EventDecryptFallback, SeverityWarning, userID, "legacy plaintext field", nil)
		return plaintext
	}
	if err != nil {
		e.metricInc(MetricDecryptFailure)
		e.emitSecurity(ctx, EventDecryptFailure, SeverityCritical, userID, "field decryption failed", nil)
		return stored
	}
	return plaintext
}

// decryptSecret resolves a stored secret. Unlike display fields there is
// no raw-value fallback: any failure is a hard [ErrCryptoFailure].
func (e *Engine) decryptSecret(ctx context.Context, userID, stored string) (string, error) {
	plaintext, err := e.cipher.Decrypt(stored)
	if err != nil {
		e.metricInc(MetricDecryptFailure)
		e.emitSecurity(ctx, EventDecryptFailure, SeverityCritical, userID, "secret decryption failed", nil)
		return "", ErrCryptoFailure
	}
	return plaintext, nil
}
