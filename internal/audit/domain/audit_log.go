package domain

import "time"

// Action names an authentication audit event.
type Action string

const (
	ActionCodeIssued            Action = "code_issued"
	ActionCodeVerified          Action = "code_verified"
	ActionCodeRejected          Action = "code_rejected"
	ActionTOTPProvisioned       Action = "totp_provisioned"
	ActionTOTPVerified          Action = "totp_verified"
	ActionTOTPRejected          Action = "totp_rejected"
	ActionTOTPReset             Action = "totp_reset"
	ActionRegistrationStarted   Action = "registration_started"
	ActionRegistrationSucceeded Action = "registration_succeeded"
	ActionRegistrationRejected  Action = "registration_rejected"
	ActionLoginStarted          Action = "login_started"
	ActionLoginSucceeded        Action = "login_succeeded"
	ActionLoginRejected         Action = "login_rejected"
	ActionPossibleClone         Action = "possible_clone_detected"
	ActionSessionRevoked        Action = "session_revoked"
)

// Warn reports whether the action needs operator attention.
func (a Action) Warn() bool {
	return a == ActionPossibleClone
}

// AuditLog represents an audit event. Reason carries the internal rejection cause and
// never leaves the server.
type AuditLog struct {
	ID            string
	Action        Action
	PrincipalKind string
	PrincipalID   string
	SessionID     string
	Reason        string
	IP            string
	Metadata      map[string]string
	CreatedAt     time.Time
}
