package domain

import (
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Ceremony identifies which WebAuthn ceremony a pending challenge belongs to.
type Ceremony string

const (
	CeremonyRegistration   Ceremony = "registration"
	CeremonyAuthentication Ceremony = "authentication"
)

// PendingChallenge is the single outstanding ceremony challenge for an owner (admin id).
// Session is the relying-party state produced when the ceremony began.
type PendingChallenge struct {
	OwnerID   string               `json:"ownerId"`
	Ceremony  Ceremony             `json:"ceremony"`
	Session   webauthn.SessionData `json:"session"`
	ExpiresAt time.Time            `json:"expiresAt"`
	CreatedAt time.Time            `json:"createdAt"`
}

// Expired reports whether the challenge can no longer be completed at now.
func (c *PendingChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Validate validates the challenge for persistence. Returns an error describing the first validation failure.
func (c *PendingChallenge) Validate() error {
	if c.OwnerID == "" {
		return errors.New("ownerId is required")
	}
	if c.Ceremony != CeremonyRegistration && c.Ceremony != CeremonyAuthentication {
		return errors.New("unknown ceremony")
	}
	if c.Session.Challenge == "" {
		return errors.New("session challenge is required")
	}
	if c.ExpiresAt.IsZero() {
		return errors.New("expiresAt is required")
	}
	return nil
}
