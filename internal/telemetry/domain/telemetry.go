package domain

import "time"

// Severity of an emitted event.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
)

// Event is one authentication telemetry event exported as an OTel log record.
type Event struct {
	EventType     string
	PrincipalKind string // "admin" or "participant"; empty when unknown
	PrincipalID   string
	SessionID     string
	Source        string // client address when known
	Severity      Severity
	Metadata      map[string]string
	CreatedAt     time.Time
}
