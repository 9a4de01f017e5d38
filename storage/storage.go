package storage

import (
	"context"
	"errors"
	"time"
)

// Common storage errors. Implementations must return these (possibly
// wrapped) so callers can map them to OAuth error codes.
var (
	// ErrAuthorizationCodeNotFound indicates the code was never issued,
	// already redeemed, or expired out of the store.
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrAuthorizationCodeExpired indicates the code record still existed
	// but its embedded expiry had passed (belt-and-suspenders on top of
	// the store TTL).
	ErrAuthorizationCodeExpired = errors.New("authorization code expired")

	// ErrTokenNotFound indicates the refresh token has no existence record.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenRevoked indicates the refresh token's record was overwritten
	// with a revocation marker.
	ErrTokenRevoked = errors.New("refresh token revoked")
)

// RevokedMarker is the value written over a revoked credential's key.
// The marker self-expires with the token's remaining natural lifetime.
const RevokedMarker = "revoked"

// AuthorizationCode binds an authenticated user to a requesting client
// for a short, single-use window.
type AuthorizationCode struct {
	Code      string
	UserID    string
	ClientID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// FlowStore persists authorization codes.
type FlowStore interface {
	// SaveAuthorizationCode stores an issued code with a TTL derived from
	// its expiry.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// RedeemAuthorizationCode atomically retrieves and deletes a code in a
	// single indivisible store operation. Of any number of concurrent
	// redemption attempts for the same code, at most one receives the
	// payload; the rest get ErrAuthorizationCodeNotFound.
	//
	// This atomicity is the single-use enforcement mechanism, not an
	// optimization. A non-atomic implementation reintroduces
	// double-redemption races.
	RedeemAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// TokenStore persists refresh token records, per-user active-token sets,
// and the access-token denylist.
type TokenStore interface {
	// SaveRefreshToken stores the token's existence record (TTL until
	// expiresAt) and adds it to the owning user's active set. Both writes
	// happen in one transaction: a record never exists without its set
	// membership, and vice versa.
	SaveRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error

	// GetRefreshTokenUser returns the owning user ID for a refresh token.
	// Returns ErrTokenNotFound if absent and ErrTokenRevoked if the record
	// holds the revocation marker.
	GetRefreshTokenUser(ctx context.Context, token string) (string, error)

	// RotateOutRefreshToken atomically deletes the token's record and
	// removes it from the user's active set. At most one of any number of
	// concurrent calls for the same token succeeds; the rest get
	// ErrTokenNotFound. Callers must rotate out the old token before
	// minting its replacement.
	RotateOutRefreshToken(ctx context.Context, token, userID string) error

	// ListUserRefreshTokens returns all members of the user's active set.
	ListUserRefreshTokens(ctx context.Context, userID string) ([]string, error)

	// PurgeUserRefreshTokens deletes every listed token record and clears
	// the user's active set in one indivisible transaction, so a
	// concurrent refresh cannot resurrect a token mid-logout.
	PurgeUserRefreshTokens(ctx context.Context, userID string, tokens []string) error

	// RevokeAccessToken writes a denylist record keyed by the exact token
	// value, expiring after ttl. Callers must not ask for ttl <= 0.
	RevokeAccessToken(ctx context.Context, token string, ttl time.Duration) error

	// IsAccessTokenRevoked reports whether a denylist record exists for
	// the token.
	IsAccessTokenRevoked(ctx context.Context, token string) (bool, error)

	// RevokeRefreshToken overwrites the token's existence record with the
	// revocation marker (expiring after ttl) and removes it from the
	// user's active set, in one transaction.
	RevokeRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error
}

// Store combines all credential store capabilities.
type Store interface {
	FlowStore
	TokenStore
}
