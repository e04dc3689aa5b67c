// Package webauthntest provides an in-process platform authenticator for ceremony tests.
package webauthntest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/require"
)

// Authenticator data flags.
const (
	FlagUP byte = 0x01
	FlagUV byte = 0x04
	FlagBE byte = 0x08
	FlagAT byte = 0x40
)

var b64 = base64.RawURLEncoding.EncodeToString

// Authenticator is an ES256 platform authenticator producing genuine "none" attestations
// and signed assertions. Fields may be changed between calls to simulate faults.
type Authenticator struct {
	RPID         string
	Origin       string
	CredentialID []byte
	AAGUID       []byte
	Counter      uint32
	Flags        byte

	key *ecdsa.PrivateKey
}

// New returns an authenticator for rpID and origin that performs user verification and
// never increments its counter.
func New(t testing.TB, rpID, origin string) *Authenticator {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	credID := make([]byte, 32)
	_, err = rand.Read(credID)
	require.NoError(t, err)
	return &Authenticator{
		RPID:         rpID,
		Origin:       origin,
		CredentialID: credID,
		AAGUID:       make([]byte, 16),
		Flags:        FlagUP | FlagUV,
		key:          key,
	}
}

func (a *Authenticator) cosePublicKey(t testing.TB) []byte {
	t.Helper()
	pub, err := a.key.PublicKey.ECDH()
	require.NoError(t, err)
	raw := pub.Bytes() // 0x04 || X || Y
	em, err := cbor.CTAP2EncOptions().EncMode()
	require.NoError(t, err)
	out, err := em.Marshal(map[int]any{1: 2, 3: -7, -1: 1, -2: raw[1:33], -3: raw[33:65]})
	require.NoError(t, err)
	return out
}

func (a *Authenticator) clientData(t testing.TB, typ string, challenge []byte) []byte {
	t.Helper()
	out, err := json.Marshal(map[string]any{
		"type":        typ,
		"challenge":   b64(challenge),
		"origin":      a.Origin,
		"crossOrigin": false,
	})
	require.NoError(t, err)
	return out
}

func (a *Authenticator) authData(flags byte) []byte {
	rpHash := sha256.Sum256([]byte(a.RPID))
	out := append([]byte{}, rpHash[:]...)
	out = append(out, flags)
	return binary.BigEndian.AppendUint32(out, a.Counter)
}

// Attest answers a registration challenge.
func (a *Authenticator) Attest(t testing.TB, creation *protocol.CredentialCreation) []byte {
	t.Helper()
	clientData := a.clientData(t, "webauthn.create", creation.Response.Challenge)

	authData := a.authData(a.Flags | FlagAT)
	authData = append(authData, a.AAGUID...)
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(a.CredentialID)))
	authData = append(authData, a.CredentialID...)
	authData = append(authData, a.cosePublicKey(t)...)

	em, err := cbor.CTAP2EncOptions().EncMode()
	require.NoError(t, err)
	attObj, err := em.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"id":    b64(a.CredentialID),
		"rawId": b64(a.CredentialID),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64(clientData),
			"attestationObject": b64(attObj),
			"transports":        []string{"internal"},
		},
		"authenticatorAttachment": "platform",
		"clientExtensionResults":  map[string]any{},
	})
	require.NoError(t, err)
	return body
}

// Assert answers an authentication challenge with the current counter.
func (a *Authenticator) Assert(t testing.TB, assertion *protocol.CredentialAssertion, userHandle []byte) []byte {
	t.Helper()
	clientData := a.clientData(t, "webauthn.get", assertion.Response.Challenge)
	authData := a.authData(a.Flags)

	clientHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"id":    b64(a.CredentialID),
		"rawId": b64(a.CredentialID),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64(clientData),
			"authenticatorData": b64(authData),
			"signature":         b64(sig),
			"userHandle":        b64(userHandle),
		},
		"authenticatorAttachment": "platform",
		"clientExtensionResults":  map[string]any{},
	})
	require.NoError(t, err)
	return body
}
