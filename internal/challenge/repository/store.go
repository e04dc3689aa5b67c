package repository

import (
	"context"
	"errors"
	"fmt"

	"camp-auth/backend/internal/challenge/domain"
	"camp-auth/backend/internal/store"
)

// StoreRepository keeps challenges in the pendingChallenges collection keyed by owner id.
type StoreRepository struct {
	store store.Store
}

// NewStoreRepository returns a challenge repository backed by s.
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

// Put overwrites the owner's pending challenge.
func (r *StoreRepository) Put(ctx context.Context, c *domain.PendingChallenge) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return store.PutJSON(ctx, r.store, store.PendingChallenges, c.OwnerID, c)
}

// Take consumes the owner's pending challenge. A malformed record is still consumed.
func (r *StoreRepository) Take(ctx context.Context, ownerID string) (*domain.PendingChallenge, error) {
	raw, err := r.store.Take(ctx, store.PendingChallenges, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var c domain.PendingChallenge
	if err := store.DecodeJSON(raw, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: challenge for %q: %v", store.ErrMalformedRecord, ownerID, err)
	}
	return &c, nil
}
