package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"camp-auth/backend/internal/session/domain"
	"camp-auth/backend/internal/store"
)

var errOtherSession = errors.New("slot holds another session")

// StoreRepository keeps sessions in the sessions collection keyed by kind.
type StoreRepository struct {
	store store.Store
}

// NewStoreRepository returns a session repository backed by s.
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

func decodeSession(kind domain.Kind, raw json.RawMessage) (*domain.Session, error) {
	var s domain.Session
	if err := store.DecodeJSON(raw, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: session %q: %v", store.ErrMalformedRecord, kind, err)
	}
	if s.Kind != kind {
		return nil, fmt.Errorf("%w: session of kind %q stored under %q", store.ErrMalformedRecord, s.Kind, kind)
	}
	return &s, nil
}

// Get returns the session for kind, or nil if the slot is empty.
func (r *StoreRepository) Get(ctx context.Context, kind domain.Kind) (*domain.Session, error) {
	raw, err := r.store.Get(ctx, store.Sessions, string(kind))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeSession(kind, raw)
}

// Put overwrites the slot for s.Kind.
func (r *StoreRepository) Put(ctx context.Context, s *domain.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return store.PutJSON(ctx, r.store, store.Sessions, string(s.Kind), s)
}

// DeleteIfID removes the session only when its id matches.
func (r *StoreRepository) DeleteIfID(ctx context.Context, kind domain.Kind, id string) (bool, error) {
	deleted := false
	err := r.store.Update(ctx, store.Sessions, string(kind), func(old json.RawMessage, exists bool) (json.RawMessage, error) {
		if !exists {
			return nil, errOtherSession
		}
		s, err := decodeSession(kind, old)
		if err != nil {
			return nil, err
		}
		if s.ID != id {
			return nil, errOtherSession
		}
		deleted = true
		return nil, store.ErrDeleteRecord
	})
	if errors.Is(err, errOtherSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return deleted, nil
}
