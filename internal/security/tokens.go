package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// SessionClaims holds JWT claims for a session token. The jti is the session id.
type SessionClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

// SessionToken is the validated content of a session token.
type SessionToken struct {
	SessionID   string
	Kind        string
	PrincipalID string
	ExpiresAt   time.Time
}

// TokenProvider issues and validates session JWTs using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		nowF:       time.Now,
	}
}

// SetClock replaces the time source used for iat and validation. Used by tests.
func (p *TokenProvider) SetClock(now func() time.Time) {
	p.nowF = now
}

// IssueSession signs a token for the session. The token expires with the session.
func (p *TokenProvider) IssueSession(sessionID, kind, principalID string, expiresAt time.Time) (string, error) {
	if sessionID == "" || kind == "" || principalID == "" {
		return "", ErrInvalidToken
	}
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   principalID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(p.nowF().UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt.UTC()),
		},
		Kind: kind,
	}
	return p.sign(claims)
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// ValidateSession parses and validates a session token (signature, exp, iss, aud).
func (p *TokenProvider) ValidateSession(tokenString string) (*SessionToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.nowF),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.ID == "" || claims.Kind == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &SessionToken{
		SessionID:   claims.ID,
		Kind:        claims.Kind,
		PrincipalID: claims.Subject,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
