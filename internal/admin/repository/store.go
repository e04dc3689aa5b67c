package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"camp-auth/backend/internal/admin/domain"
	"camp-auth/backend/internal/store"
)

// StoreRepository keeps administrators in the administrators collection.
type StoreRepository struct {
	store store.Store
	nowF  func() time.Time
}

// NewStoreRepository returns an administrator repository backed by s.
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s, nowF: func() time.Time { return time.Now().UTC() }}
}

func decodeAdmin(key string, raw json.RawMessage) (*domain.Administrator, error) {
	var a domain.Administrator
	if err := store.DecodeJSON(raw, &a); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: administrator %q: %v", store.ErrMalformedRecord, key, err)
	}
	if a.AdminID != key {
		return nil, fmt.Errorf("%w: administrator %q: stored under key %q", store.ErrMalformedRecord, a.AdminID, key)
	}
	return &a, nil
}

// GetByID returns the administrator for adminID, or nil if not found.
func (r *StoreRepository) GetByID(ctx context.Context, adminID string) (*domain.Administrator, error) {
	raw, err := r.store.Get(ctx, store.Administrators, adminID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeAdmin(adminID, raw)
}

// List returns every administrator ordered by id.
func (r *StoreRepository) List(ctx context.Context) ([]*domain.Administrator, error) {
	all, err := r.store.List(ctx, store.Administrators)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Administrator, 0, len(all))
	for key, raw := range all {
		a, err := decodeAdmin(key, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdminID < out[j].AdminID })
	return out, nil
}

// AppendCredential appends cred under a single store update so concurrent registrations
// for the same admin both survive.
func (r *StoreRepository) AppendCredential(ctx context.Context, adminID string, cred domain.Credential) (*domain.Administrator, error) {
	var result *domain.Administrator
	err := r.store.Update(ctx, store.Administrators, adminID, func(old json.RawMessage, exists bool) (json.RawMessage, error) {
		now := r.nowF()
		a := &domain.Administrator{AdminID: adminID, CreatedAt: now}
		if exists {
			var err error
			if a, err = decodeAdmin(adminID, old); err != nil {
				return nil, err
			}
		}
		if _, dup := a.Credential(cred.ID); dup {
			return nil, ErrDuplicateCredential
		}
		if cred.CreatedAt.IsZero() {
			cred.CreatedAt = now
		}
		a.Credentials = append(a.Credentials, cred)
		a.UpdatedAt = now
		if err := a.Validate(); err != nil {
			return nil, err
		}
		result = a
		return json.Marshal(a)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordAssertion updates the credential's counter and last-use time.
func (r *StoreRepository) RecordAssertion(ctx context.Context, adminID string, credentialID []byte, signCount uint32, backupState bool, at time.Time) error {
	return r.store.Update(ctx, store.Administrators, adminID, func(old json.RawMessage, exists bool) (json.RawMessage, error) {
		if !exists {
			return nil, ErrCredentialNotFound
		}
		a, err := decodeAdmin(adminID, old)
		if err != nil {
			return nil, err
		}
		c, ok := a.Credential(credentialID)
		if !ok {
			return nil, ErrCredentialNotFound
		}
		if !domain.CounterAdvanced(c.SignCount, signCount) {
			return nil, ErrCounterNotAdvanced
		}
		c.SignCount = signCount
		c.BackupState = backupState
		used := at.UTC()
		c.LastUsedAt = &used
		a.UpdatedAt = r.nowF()
		return json.Marshal(a)
	})
}
