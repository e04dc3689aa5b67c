package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"camp-auth/backend/internal/participant/domain"
	"camp-auth/backend/internal/store"
)

// StoreRepository keeps participants in the participants collection.
type StoreRepository struct {
	store store.Store
	nowF  func() time.Time
}

// NewStoreRepository returns a participant repository backed by s.
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s, nowF: func() time.Time { return time.Now().UTC() }}
}

// GetByEmail returns the participant for email, or nil if not found.
// It returns an error only for store failures and malformed records, not for missing keys.
func (r *StoreRepository) GetByEmail(ctx context.Context, email string) (*domain.Participant, error) {
	var p domain.Participant
	if err := store.GetJSON(ctx, r.store, store.Participants, email, &p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: participant %q: %v", store.ErrMalformedRecord, email, err)
	}
	return &p, nil
}

// EnsureTOTPSecret sets the secret only if none is stored, in one atomic update.
func (r *StoreRepository) EnsureTOTPSecret(ctx context.Context, email, secret string) (string, bool, error) {
	var (
		stored  string
		created bool
	)
	err := r.store.Update(ctx, store.Participants, email, func(old json.RawMessage, exists bool) (json.RawMessage, error) {
		now := r.nowF()
		p := domain.Participant{Email: email, CreatedAt: now}
		if exists {
			if err := store.DecodeJSON(old, &p); err != nil {
				return nil, err
			}
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("%w: participant %q: %v", store.ErrMalformedRecord, email, err)
			}
		}
		if p.HasTOTP() {
			stored, created = p.TOTPSecret, false
			return old, nil
		}
		p.TOTPSecret = secret
		p.UpdatedAt = now
		stored, created = secret, true
		return json.Marshal(p)
	})
	if err != nil {
		return "", false, err
	}
	return stored, created, nil
}

// ClearTOTPSecret removes the stored secret so the next provisioning creates a new one.
func (r *StoreRepository) ClearTOTPSecret(ctx context.Context, email string) error {
	return r.store.Update(ctx, store.Participants, email, func(old json.RawMessage, exists bool) (json.RawMessage, error) {
		if !exists {
			return nil, ErrNotFound
		}
		var p domain.Participant
		if err := store.DecodeJSON(old, &p); err != nil {
			return nil, err
		}
		p.TOTPSecret = ""
		p.UpdatedAt = r.nowF()
		return json.Marshal(p)
	})
}
