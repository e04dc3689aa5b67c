package security

// NewTestTokenProvider returns a TokenProvider over a fresh ES256 key, the same kind of key
// the server generates when none is configured. Not for production use.
func NewTestTokenProvider() (*TokenProvider, error) {
	signer, pub, _, err := LoadKeyPair("", "")
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, pub, "camp-auth-test", "camp-dashboard-test"), nil
}
