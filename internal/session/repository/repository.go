package repository

import (
	"context"

	"camp-auth/backend/internal/session/domain"
)

// Repository defines persistence for sessions, one slot per kind.
type Repository interface {
	// Get returns the session in the kind's slot, or nil if empty.
	Get(ctx context.Context, kind domain.Kind) (*domain.Session, error)
	// Put stores s in its kind's slot, replacing any previous session.
	Put(ctx context.Context, s *domain.Session) error
	// DeleteIfID empties the kind's slot only when it holds the session with id.
	// Reports whether a session was removed.
	DeleteIfID(ctx context.Context, kind domain.Kind, id string) (bool, error)
}
