// Package audit records authentication events for operator review.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"camp-auth/backend/internal/audit/domain"
	"camp-auth/backend/internal/telemetry"
	telemetrydomain "camp-auth/backend/internal/telemetry/domain"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Event is the caller-supplied part of an audit entry.
type Event struct {
	Action        domain.Action
	PrincipalKind string
	PrincipalID   string
	SessionID     string
	Reason        string
	Metadata      map[string]string
}

// AuditLogger writes a single audit event. Used by the code, ceremony and session services.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, ev Event)
}

// Logger implements AuditLogger by writing each entry to slog and emitting it as telemetry.
type Logger struct {
	log         *slog.Logger
	emitter     telemetry.EventEmitter
	ipExtractor IPExtractor
	nowF        func() time.Time
}

// NewLogger returns an AuditLogger. emitter and ipExtractor may be nil; then no telemetry is
// emitted and IP is recorded as "unknown".
func NewLogger(log *slog.Logger, emitter telemetry.EventEmitter, ipExtractor IPExtractor) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{
		log:         log.With(slog.String("component", "audit")),
		emitter:     emitter,
		ipExtractor: ipExtractor,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// LogEvent writes one audit entry.
func (l *Logger) LogEvent(ctx context.Context, ev Event) {
	entry := l.entry(ctx, ev)

	attrs := []slog.Attr{
		slog.String("audit_id", entry.ID),
		slog.String("action", string(entry.Action)),
		slog.String("ip", entry.IP),
	}
	if entry.PrincipalKind != "" {
		attrs = append(attrs, slog.String("principal_kind", entry.PrincipalKind))
	}
	if entry.PrincipalID != "" {
		attrs = append(attrs, slog.String("principal_id", entry.PrincipalID))
	}
	if entry.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", entry.SessionID))
	}
	if entry.Reason != "" {
		attrs = append(attrs, slog.String("reason", entry.Reason))
	}
	for k, v := range entry.Metadata {
		attrs = append(attrs, slog.String(k, v))
	}
	level := slog.LevelInfo
	if entry.Action.Warn() {
		level = slog.LevelWarn
	}
	l.log.LogAttrs(ctx, level, "audit event", attrs...)

	telemetry.EmitAsync(l.emitter, l.log, toTelemetry(entry))
}

func (l *Logger) entry(ctx context.Context, ev Event) *domain.AuditLog {
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	return &domain.AuditLog{
		ID:            uuid.New().String(),
		Action:        ev.Action,
		PrincipalKind: ev.PrincipalKind,
		PrincipalID:   ev.PrincipalID,
		SessionID:     ev.SessionID,
		Reason:        ev.Reason,
		IP:            ip,
		Metadata:      ev.Metadata,
		CreatedAt:     l.nowF(),
	}
}

func toTelemetry(entry *domain.AuditLog) *telemetrydomain.Event {
	meta := make(map[string]string, len(entry.Metadata)+1)
	for k, v := range entry.Metadata {
		meta[k] = v
	}
	if entry.Reason != "" {
		meta["reason"] = entry.Reason
	}
	sev := telemetrydomain.SeverityInfo
	if entry.Action.Warn() {
		sev = telemetrydomain.SeverityWarn
	}
	return &telemetrydomain.Event{
		EventType:     string(entry.Action),
		PrincipalKind: entry.PrincipalKind,
		PrincipalID:   entry.PrincipalID,
		SessionID:     entry.SessionID,
		Source:        entry.IP,
		Severity:      sev,
		Metadata:      meta,
		CreatedAt:     entry.CreatedAt,
	}
}

// Nop discards audit events.
type Nop struct{}

// LogEvent implements AuditLogger.
func (Nop) LogEvent(context.Context, Event) {}
