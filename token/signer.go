// Package token issues and verifies the signed tokens carried by the
// OAuth/OIDC surface: access tokens, ID tokens, and refresh tokens.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates a malformed, forged, or (when expiry is
// enforced) expired token.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the claim set embedded in every signed token. The JSON field
// names are part of the wire contract with relying clients.
type Claims struct {
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	ClientID string   `json:"clientId,omitempty"`
	jwt.RegisteredClaims
}

// ExpiresIn returns the token's remaining lifetime relative to now.
// Zero or negative means the token is already past its expiry claim.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// Signer signs and verifies HS256 JWTs with a shared secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer. The secret must not be empty.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	return &Signer{
		secret: []byte(secret),
		now:    time.Now,
	}, nil
}

// Sign signs the claims with issued-at now and expiry now+ttl. The
// caller's iss/aud/sub fields are preserved. A random jti is assigned
// unless the caller set one, so tokens minted with identical claims in
// the same second are still distinct strings.
func (s *Signer) Sign(claims *Claims, ttl time.Duration) (string, error) {
	now := s.now()
	cp := *claims
	cp.IssuedAt = jwt.NewNumericDate(now)
	cp.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if cp.ID == "" {
		jti, err := newTokenID()
		if err != nil {
			return "", fmt.Errorf("failed to generate token id: %w", err)
		}
		cp.ID = jti
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &cp)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func newTokenID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify checks the token's signature and returns its claims. With
// ignoreExpiry set, claim validation (including exp) is skipped while
// the signature check still applies. Revocation and logout need this to
// inspect tokens that have already expired by clock.
func (s *Signer) Verify(tokenString string, ignoreExpiry bool) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if ignoreExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
