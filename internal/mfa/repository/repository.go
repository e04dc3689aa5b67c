package repository

import (
	"context"
	"time"

	"camp-auth/backend/internal/mfa/domain"
)

// Repository defines persistence for pending email codes, one per email.
type Repository interface {
	// Put stores c as the email's only pending code, replacing any previous one.
	Put(ctx context.Context, c *domain.PendingCode) error
	// GetByEmail returns the pending code for email, or nil if none.
	GetByEmail(ctx context.Context, email string) (*domain.PendingCode, error)
	// ConsumeIf atomically deletes the pending code for email when match reports true.
	// Reports whether the code matched and was removed.
	ConsumeIf(ctx context.Context, email string, match func(*domain.PendingCode) bool) (bool, error)
}

// DefaultCodeTTL is the default email code expiry.
const DefaultCodeTTL = 5 * time.Minute
