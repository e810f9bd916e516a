package goVault

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type auditRecord struct {
	security *SecurityEvent
	entry    *AuditEntry
}

// auditDispatcher decouples event emission from sink latency so a slow
// sink cannot stall the request path. Close drains the buffer.
type auditDispatcher struct {
	cfg       AuditConfig
	sink      Sink
	ch        chan auditRecord
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink Sink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan auditRecord, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case record := <-d.ch:
			d.deliver(record)
		case <-d.done:
			for {
				select {
				case record := <-d.ch:
					d.deliver(record)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) deliver(record auditRecord) {
	ctx := context.Background()
	if record.security != nil {
		d.sink.EmitSecurity(ctx, *record.security)
	}
	if record.entry != nil {
		d.sink.EmitAudit(ctx, *record.entry)
	}
}

func (d *auditDispatcher) emit(ctx context.Context, record auditRecord) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- record:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- record:
	case <-ctx.Done():
	case <-d.done:
	}
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// emitSecurity records a security event. metadata is built lazily so the
// closure cost is only paid when auditing is enabled.
func (e *Engine) emitSecurity(ctx context.Context, eventType string, severity Severity, userID, details string, metadata func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := SecurityEvent{
		EventType: eventType,
		Severity:  severity,
		UserID:    userID,
		IPAddress: clientIPFromContext(ctx),
		Endpoint:  endpointFromContext(ctx),
		Details:   details,
		CreatedAt: time.Now(),
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.emit(ctx, auditRecord{security: &event})
}

// emitAuditEntry records a sensitive data mutation.
func (e *Engine) emitAuditEntry(ctx context.Context, tableName, recordID, action, oldValues, newValues, userID string) {
	if e == nil || e.audit == nil {
		return
	}

	entry := AuditEntry{
		TableName: tableName,
		RecordID:  recordID,
		Action:    action,
		OldValues: oldValues,
		NewValues: newValues,
		UserID:    userID,
		IPAddress: clientIPFromContext(ctx),
		CreatedAt: time.Now(),
	}

	e.audit.emit(ctx, auditRecord{entry: &entry})
}
