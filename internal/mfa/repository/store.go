package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"camp-auth/backend/internal/mfa/domain"
	"camp-auth/backend/internal/store"
)

var errNoMatch = errors.New("code does not match")

// StoreRepository keeps pending codes in the otpCodes collection keyed by email.
type StoreRepository struct {
	store store.Store
}

// NewStoreRepository returns a code repository backed by s.
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

func decodeCode(email string, raw json.RawMessage) (*domain.PendingCode, error) {
	var c domain.PendingCode
	if err := store.DecodeJSON(raw, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: code for %q: %v", store.ErrMalformedRecord, email, err)
	}
	return &c, nil
}

// Put overwrites the pending code for c.Email.
func (r *StoreRepository) Put(ctx context.Context, c *domain.PendingCode) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return store.PutJSON(ctx, r.store, store.OTPCodes, c.Email, c)
}

// GetByEmail returns the pending code for email, or nil if not found.
func (r *StoreRepository) GetByEmail(ctx context.Context, email string) (*domain.PendingCode, error) {
	raw, err := r.store.Get(ctx, store.OTPCodes, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeCode(email, raw)
}

// ConsumeIf deletes the code under the store's per-key lock when match accepts it.
func (r *StoreRepository) ConsumeIf(ctx context.Context, email string, match func(*domain.PendingCode) bool) (bool, error) {
	err := r.store.Update(ctx, store.OTPCodes, email, func(old json.RawMessage, exists bool) (json.RawMessage, error) {
		if !exists {
			return nil, errNoMatch
		}
		c, err := decodeCode(email, old)
		if err != nil {
			return nil, err
		}
		if !match(c) {
			return nil, errNoMatch
		}
		return nil, store.ErrDeleteRecord
	})
	if errors.Is(err, errNoMatch) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
