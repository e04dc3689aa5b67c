package repository

import (
	"context"
	"errors"

	"camp-auth/backend/internal/participant/domain"
)

// ErrNotFound is returned by operations that require an existing participant.
var ErrNotFound = errors.New("participant not found")

// Repository defines persistence for participant accounts.
type Repository interface {
	// GetByEmail returns the participant for email, or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.Participant, error)
	// EnsureTOTPSecret stores secret for email only when the account has none, creating the
	// account if needed. Returns the secret that is stored afterwards and whether it was newly set.
	EnsureTOTPSecret(ctx context.Context, email, secret string) (stored string, created bool, err error)
	// ClearTOTPSecret removes the TOTP secret. Operator-only; ErrNotFound when the account does not exist.
	ClearTOTPSecret(ctx context.Context, email string) error
}
