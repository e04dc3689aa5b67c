package domain

import (
	"errors"
	"time"
)

// PendingCode is the single outstanding emailed code for a participant (stored in otpCodes).
// Only the SHA-256 hash of the code is persisted.
type PendingCode struct {
	Email     string    `json:"email"`
	CodeHash  string    `json:"codeHash"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the code is past its expiry. now == ExpiresAt is still valid.
func (c *PendingCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Validate validates the code for persistence. Returns an error describing the first validation failure.
func (c *PendingCode) Validate() error {
	if c.Email == "" {
		return errors.New("email is required")
	}
	if c.CodeHash == "" {
		return errors.New("codeHash is required")
	}
	if c.ExpiresAt.IsZero() {
		return errors.New("expiresAt is required")
	}
	return nil
}
