package postgres

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	goVault "github.com/MrEthical07/goVault"
)

const defaultEventLimit = 100

// EventStore persists security events and audit entries and serves the
// operator query surface. Writes are best-effort: the dispatcher already
// decoupled them from the request path, so a failed insert is logged and
// dropped rather than retried.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore wraps an existing pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

func (s *EventStore) EmitSecurity(ctx context.Context, event goVault.SecurityEvent) {
	var metadata []byte
	if len(event.Metadata) > 0 {
		metadata, _ = json.Marshal(event.Metadata)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO security_events (event_type, severity, user_id, ip_address, endpoint, details, metadata, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)`,
		event.EventType, string(event.Severity), event.UserID, event.IPAddress,
		event.Endpoint, event.Details, metadata, event.CreatedAt,
	)
	if err != nil {
		log.Print("postgres: security event insert failed")
	}
}

func (s *EventStore) EmitAudit(ctx context.Context, entry goVault.AuditEntry) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (table_name, record_id, action, old_values, new_values, user_id, ip_address, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)`,
		entry.TableName, entry.RecordID, entry.Action, entry.OldValues,
		entry.NewValues, entry.UserID, entry.IPAddress, entry.CreatedAt,
	)
	if err != nil {
		log.Print("postgres: audit entry insert failed")
	}
}

// FindSecurityEvents filters recorded events. The WHERE clause grows only
// from fixed fragments; filter values bind as parameters.
func (s *EventStore) FindSecurityEvents(ctx context.Context, filter goVault.SecurityEventFilter) ([]goVault.SecurityEvent, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, clause+"$"+strconv.Itoa(len(args)))
	}

	if filter.EventType != "" {
		add("event_type = ", filter.EventType)
	}
	if filter.Severity != "" {
		add("severity = ", string(filter.Severity))
	}
	if filter.UserID != "" {
		add("user_id = ", filter.UserID)
	}
	if filter.IPAddress != "" {
		add("ip_address = ", filter.IPAddress)
	}
	if !filter.From.IsZero() {
		add("created_at >= ", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= ", filter.To)
	}

	query := `SELECT event_type, severity, COALESCE(user_id, ''), COALESCE(ip_address, ''),
		COALESCE(endpoint, ''), COALESCE(details, ''), metadata, created_at
		FROM security_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	args = append(args, limit)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []goVault.SecurityEvent
	for rows.Next() {
		var (
			event    goVault.SecurityEvent
			severity string
			metadata []byte
		)
		if err := rows.Scan(&event.EventType, &severity, &event.UserID, &event.IPAddress,
			&event.Endpoint, &event.Details, &metadata, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Severity = goVault.Severity(severity)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &event.Metadata)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
