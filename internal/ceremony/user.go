package ceremony

import (
	"crypto/sha256"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	admindomain "camp-auth/backend/internal/admin/domain"
)

const userHandleDomain = "camp-auth/admin:"

// UserHandle returns the opaque WebAuthn user handle for an admin id. It is stable across
// restarts and reveals nothing about the id.
func UserHandle(adminID string) []byte {
	h := sha256.Sum256([]byte(userHandleDomain + adminID))
	return h[:]
}

// adminUser adapts an administrator to webauthn.User.
type adminUser struct {
	id          string
	handle      []byte
	credentials []webauthn.Credential
}

func newAdminUser(adminID string, admin *admindomain.Administrator) *adminUser {
	u := &adminUser{id: adminID, handle: UserHandle(adminID)}
	if admin != nil {
		for _, c := range admin.Credentials {
			u.credentials = append(u.credentials, toWebAuthn(c))
		}
	}
	return u
}

func (u *adminUser) WebAuthnID() []byte                         { return u.handle }
func (u *adminUser) WebAuthnName() string                       { return u.id }
func (u *adminUser) WebAuthnDisplayName() string                { return u.id }
func (u *adminUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func (u *adminUser) descriptors() []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, 0, len(u.credentials))
	for _, c := range u.credentials {
		out = append(out, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.ID,
			Transport:    c.Transport,
		})
	}
	return out
}

func toWebAuthn(c admindomain.Credential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    true,
			UserVerified:   c.UserVerified,
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

// fromWebAuthn converts a freshly created credential. The stored counter always starts at 0.
func fromWebAuthn(c *webauthn.Credential) admindomain.Credential {
	transports := make([]string, 0, len(c.Transport))
	for _, t := range c.Transport {
		transports = append(transports, string(t))
	}
	return admindomain.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		SignCount:       0,
		AttestationType: c.AttestationType,
		AAGUID:          c.Authenticator.AAGUID,
		Transports:      transports,
		UserVerified:    c.Flags.UserVerified,
		BackupEligible:  c.Flags.BackupEligible,
		BackupState:     c.Flags.BackupState,
	}
}
