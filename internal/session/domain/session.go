package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the class of principal a session belongs to. Each kind has a single session slot.
type Kind string

const (
	KindAdmin       Kind = "admin"
	KindParticipant Kind = "participant"
)

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAdmin, KindParticipant:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown session kind %q", s)
	}
}

// Session is proof that a principal of Kind authenticated successfully.
type Session struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	PrincipalID   string    `json:"principalId"`
	Authenticated bool      `json:"authenticated"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Active reports whether the session still authenticates its principal at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.Authenticated && !now.After(s.ExpiresAt)
}

// Validate validates the session for persistence. Returns an error describing the first validation failure.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return err
	}
	if s.PrincipalID == "" {
		return errors.New("principalId is required")
	}
	if s.ExpiresAt.IsZero() {
		return errors.New("expiresAt is required")
	}
	return nil
}
