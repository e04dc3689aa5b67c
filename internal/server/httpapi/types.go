package httpapi

import (
	"encoding/json"
	"time"
)

// Rejection messages. Every failed check maps to one of these regardless of cause.
const (
	InvalidCredential = "invalid credential"
	InvalidCode       = "invalid code"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AdminRequest starts a ceremony.
type AdminRequest struct {
	AdminID string `json:"adminId"`
}

// RegistrationVerifyRequest carries the authenticator's attestation response verbatim.
type RegistrationVerifyRequest struct {
	AdminID     string          `json:"adminId"`
	Attestation json.RawMessage `json:"attestation"`
}

// LoginVerifyRequest carries the authenticator's assertion response verbatim.
type LoginVerifyRequest struct {
	AdminID   string          `json:"adminId"`
	Assertion json.RawMessage `json:"assertion"`
}

// CredentialView is the public part of a newly registered credential.
type CredentialView struct {
	ID        []byte `json:"id"`
	PublicKey []byte `json:"publicKey"`
	SignCount uint32 `json:"signCount"`
}

// RegistrationVerifyResponse is returned by a successful registration.
type RegistrationVerifyResponse struct {
	OK         bool           `json:"ok"`
	Credential CredentialView `json:"credential"`
}

// VerifyResponse is returned by login and code checks. Session fields are set on success.
type VerifyResponse struct {
	OK           bool       `json:"ok"`
	Error        string     `json:"error,omitempty"`
	SessionToken string     `json:"sessionToken,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// EmailRequest asks for a code or TOTP provisioning.
type EmailRequest struct {
	Email string `json:"email"`
}

// CodeRequest submits a code for an email.
type CodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// SentResponse acknowledges a code request.
type SentResponse struct {
	Sent      bool      `json:"sent"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ProvisionResponse carries the TOTP provisioning URI and QR code (base64 PNG).
type ProvisionResponse struct {
	URI   string `json:"uri"`
	QRPng []byte `json:"qrPng"`
}

// SessionResponse is the session view.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	PrincipalID   string `json:"principalId,omitempty"`
}

// DevOTPResponse is returned by the dev-only code lookup.
type DevOTPResponse struct {
	Code string `json:"code"`
}

// StatusResponse is returned by the health endpoints.
type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
