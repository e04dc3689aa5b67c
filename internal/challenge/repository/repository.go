package repository

import (
	"context"

	"camp-auth/backend/internal/challenge/domain"
)

// Repository defines persistence for pending ceremony challenges, one per owner.
type Repository interface {
	// Put stores c as the owner's only pending challenge, replacing any previous one.
	Put(ctx context.Context, c *domain.PendingChallenge) error
	// Take removes and returns the owner's pending challenge, or nil if there is none.
	// At most one concurrent caller receives a given challenge.
	Take(ctx context.Context, ownerID string) (*domain.PendingChallenge, error)
}
