// Package store persists the five authentication record collections (participants,
// administrators, pending codes, pending ceremony challenges, sessions) as JSON records
// keyed by string. It holds no business logic; typed access lives in the repository packages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names one of the five top-level record collections.
type Collection string

const (
	Participants      Collection = "participants"
	Administrators    Collection = "administrators"
	OTPCodes          Collection = "otpCodes"
	PendingChallenges Collection = "pendingChallenges"
	Sessions          Collection = "sessions"
)

// Collections lists every collection in document order.
var Collections = []Collection{Participants, Administrators, OTPCodes, PendingChallenges, Sessions}

var (
	// ErrUnavailable is returned when the underlying medium cannot be read or written.
	// Callers treat it as fatal for the in-flight request.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned by Get and Take when the key has no record.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownCollection is returned for a collection name outside Collections.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrMalformedRecord is returned by repositories when a stored record fails validation.
	// It is an ErrUnavailable-class fault.
	ErrMalformedRecord = fmt.Errorf("%w: malformed record", ErrUnavailable)
	// ErrDeleteRecord may be returned by an UpdateFunc to delete the key instead of writing.
	ErrDeleteRecord = errors.New("delete record")
)

// UpdateFunc receives the current record (nil when exists is false) and returns the record
// to write. Returning ErrDeleteRecord removes the key; any other error aborts the update
// and is returned unchanged from Update.
type UpdateFunc func(old json.RawMessage, exists bool) (json.RawMessage, error)

// Store is the Durable Store contract. Every mutation is atomic per key: a writer never
// observes or clobbers a concurrent writer's update to any key.
type Store interface {
	// List returns every record in the collection keyed by record key.
	List(ctx context.Context, c Collection) (map[string]json.RawMessage, error)
	// Get returns the record for key or ErrNotFound.
	Get(ctx context.Context, c Collection, key string) (json.RawMessage, error)
	// Put upserts the record for key.
	Put(ctx context.Context, c Collection, key string, record json.RawMessage) error
	// Delete removes the record for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, c Collection, key string) error
	// Take atomically reads and deletes the record for key, or returns ErrNotFound.
	Take(ctx context.Context, c Collection, key string) (json.RawMessage, error)
	// Update runs a read-modify-write of one key atomically.
	Update(ctx context.Context, c Collection, key string, fn UpdateFunc) error
	// Ping reports whether the medium is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Valid reports whether c is one of the five collections.
func (c Collection) Valid() bool {
	for _, k := range Collections {
		if c == k {
			return true
		}
	}
	return false
}

func checkCollection(c Collection) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, string(c))
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// GetJSON loads the record for key and decodes it into v. A record that does not decode
// is reported as ErrMalformedRecord.
func GetJSON(ctx context.Context, s Store, c Collection, key string, v any) error {
	raw, err := s.Get(ctx, c, key)
	if err != nil {
		return err
	}
	return DecodeJSON(raw, v)
}

// DecodeJSON decodes a stored record, mapping decode failures to ErrMalformedRecord.
func DecodeJSON(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}

// PutJSON encodes v and upserts it for key.
func PutJSON(ctx context.Context, s Store, c Collection, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, c, key, raw)
}
