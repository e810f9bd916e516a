package goVault

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Severity grades security events for operator filtering.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Security event types emitted by the engine. Every branch that denies or
// blocks a request emits one of these.
const (
	EventLoginSuccess         = "login_success"
	EventLoginFailure         = "login_failure"
	EventLoginRateLimited     = "login_rate_limited"
	EventRateLimitExceeded    = "rate_limit_exceeded"
	EventTokenRejected        = "token_rejected"
	EventOwnershipDenied      = "ownership_denied"
	EventSubscriptionDenied   = "subscription_denied"
	EventTwoFactorAttempted   = "two_factor_attempt"
	EventTwoFactorDenied      = "two_factor_denied"
	EventTwoFactorEnabled     = "two_factor_enabled"
	EventTwoFactorDisabled    = "two_factor_disabled"
	EventBackupCodesIssued      = "backup_codes_issued"
	EventBackupCodesRegenerated = "backup_codes_regenerated"
	EventBackupCodeConsumed     = "backup_code_consumed"
	EventBackupCodeReused       = "backup_code_reused"
	EventEmailVerified        = "email_verified"
	EventRegistration         = "registration"
	EventDecryptFallback      = "decrypt_legacy_fallback"
	EventDecryptFailure       = "decrypt_failure"
	EventAccountSoftDeleted   = "account_soft_deleted"
	EventVerificationRejected = "verification_rejected"
)

// SecurityEvent is the write-once observational record of one
// security-relevant occurrence. Core logic never reads these back; only
// operator tooling does.
type SecurityEvent struct {
	EventType string            `json:"event_type"`
	Severity  Severity          `json:"severity"`
	UserID    string            `json:"user_id,omitempty"`
	IPAddress string            `json:"ip_address,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Details   string            `json:"details,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// AuditEntry is the write-once record of one sensitive data mutation.
type AuditEntry struct {
	TableName string    `json:"table_name"`
	RecordID  string    `json:"record_id"`
	Action    string    `json:"action"`
	OldValues string    `json:"old_values,omitempty"`
	NewValues string    `json:"new_values,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink receives dispatched events. Implementations must tolerate
// concurrent calls; the dispatcher serializes per goroutine but sinks may
// be shared.
type Sink interface {
	EmitSecurity(ctx context.Context, event SecurityEvent)
	EmitAudit(ctx context.Context, entry AuditEntry)
}

// SecurityEventFilter selects events for the operator query surface.
// Zero-valued fields match everything.
type SecurityEventFilter struct {
	EventType string
	Severity  Severity
	UserID    string
	IPAddress string
	From      time.Time
	To        time.Time
	Limit     int
}

// SecurityEventStore is the optional read side for operator tooling,
// typically backed by the same store as the persisting sink.
type SecurityEventStore interface {
	FindSecurityEvents(ctx context.Context, filter SecurityEventFilter) ([]SecurityEvent, error)
}

// NoOpSink discards everything.
type NoOpSink struct{}

func (NoOpSink) EmitSecurity(context.Context, SecurityEvent) {}
func (NoOpSink) EmitAudit(context.Context, AuditEntry)       {}

// ChannelSink forwards events to buffered channels, mainly for tests.
type ChannelSink struct {
	security chan SecurityEvent
	audit    chan AuditEntry
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		security: make(chan SecurityEvent, buffer),
		audit:    make(chan AuditEntry, buffer),
	}
}

func (s *ChannelSink) EmitSecurity(ctx context.Context, event SecurityEvent) {
	select {
	case s.security <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) EmitAudit(ctx context.Context, entry AuditEntry) {
	select {
	case s.audit <- entry:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) SecurityEvents() <-chan SecurityEvent { return s.security }
func (s *ChannelSink) AuditEntries() <-chan AuditEntry      { return s.audit }

// JSONWriterSink writes one JSON line per event, suitable for piping into
// a log shipper.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) EmitSecurity(_ context.Context, event SecurityEvent) {
	s.writeLine(struct {
		Kind string `json:"kind"`
		SecurityEvent
	}{"security", event})
}

func (s *JSONWriterSink) EmitAudit(_ context.Context, entry AuditEntry) {
	s.writeLine(struct {
		Kind string `json:"kind"`
		AuditEntry
	}{"audit", entry})
}

func (s *JSONWriterSink) writeLine(v any) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
