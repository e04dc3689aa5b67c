package domain

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// Credential is one registered platform authenticator public key.
type Credential struct {
	ID              []byte     `json:"id"`
	PublicKey       []byte     `json:"publicKey"` // COSE_Key
	SignCount       uint32     `json:"signCount"`
	AttestationType string     `json:"attestationType"`
	AAGUID          []byte     `json:"aaguid,omitempty"`
	Transports      []string   `json:"transports,omitempty"`
	UserVerified    bool       `json:"userVerified"`
	BackupEligible  bool       `json:"backupEligible"`
	BackupState     bool       `json:"backupState"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastUsedAt      *time.Time `json:"lastUsedAt,omitempty"`
}

// Administrator is an administrator account and its ordered credential list.
type Administrator struct {
	AdminID     string       `json:"adminId"`
	Credentials []Credential `json:"credentials"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Validate validates the administrator for persistence. Returns an error describing the first validation failure.
func (a *Administrator) Validate() error {
	if a.AdminID == "" {
		return errors.New("adminId is required")
	}
	if len(a.Credentials) == 0 {
		return errors.New("administrator has no credentials")
	}
	for i := range a.Credentials {
		c := &a.Credentials[i]
		if len(c.ID) == 0 {
			return fmt.Errorf("credential %d: id is required", i)
		}
		if len(c.PublicKey) == 0 {
			return fmt.Errorf("credential %d: publicKey is required", i)
		}
		for j := 0; j < i; j++ {
			if bytes.Equal(a.Credentials[j].ID, c.ID) {
				return fmt.Errorf("credential %d: duplicate id", i)
			}
		}
	}
	return nil
}

// Credential returns the credential with the given id.
func (a *Administrator) Credential(id []byte) (*Credential, bool) {
	if a == nil {
		return nil, false
	}
	for i := range a.Credentials {
		if bytes.Equal(a.Credentials[i].ID, id) {
			return &a.Credentials[i], true
		}
	}
	return nil, false
}

// CredentialIDs returns the ids of all registered credentials in registration order.
func (a *Administrator) CredentialIDs() [][]byte {
	if a == nil {
		return nil
	}
	ids := make([][]byte, 0, len(a.Credentials))
	for _, c := range a.Credentials {
		ids = append(ids, c.ID)
	}
	return ids
}

// CounterAdvanced reports whether next is an acceptable successor of the stored signature
// counter: strictly greater, or both zero for authenticators that never increment.
func CounterAdvanced(stored, next uint32) bool {
	if stored == 0 && next == 0 {
		return true
	}
	return next > stored
}
