package repository

import (
	"context"
	"errors"
	"time"

	"camp-auth/backend/internal/admin/domain"
)

var (
	// ErrDuplicateCredential is returned by AppendCredential when the admin already has a credential with the same id.
	ErrDuplicateCredential = errors.New("credential already registered")
	// ErrCredentialNotFound is returned by RecordAssertion for an unknown admin or credential id.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrCounterNotAdvanced is returned by RecordAssertion when the stored counter has already
	// reached or passed the reported one.
	ErrCounterNotAdvanced = errors.New("signature counter did not advance")
)

// Repository defines persistence for administrator accounts and their credentials.
type Repository interface {
	// GetByID returns the administrator for adminID, or nil if not found.
	GetByID(ctx context.Context, adminID string) (*domain.Administrator, error)
	// List returns every administrator ordered by id.
	List(ctx context.Context) ([]*domain.Administrator, error)
	// AppendCredential atomically appends cred to the admin's credential list, creating the
	// account on first registration.
	AppendCredential(ctx context.Context, adminID string, cred domain.Credential) (*domain.Administrator, error)
	// RecordAssertion stores the new signature counter and last-use time for a credential,
	// re-checking monotonicity against the stored counter inside the same atomic update.
	RecordAssertion(ctx context.Context, adminID string, credentialID []byte, signCount uint32, backupState bool, at time.Time) error
}
