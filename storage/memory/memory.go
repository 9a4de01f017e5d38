package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/authplat/oidc-idp/storage"
)

// Store is a mutex-guarded in-memory implementation of the storage
// interfaces. All cross-request races are resolved under a single lock,
// which gives the same no-partial-visibility guarantee the Redis backend
// gets from MULTI/EXEC.
type Store struct {
	mu sync.Mutex

	authCodes map[string]*storage.AuthorizationCode

	refreshTokens        map[string]string    // token -> user ID (or revocation marker)
	refreshTokenExpiries map[string]time.Time // token -> expiry
	userTokens           map[string]map[string]struct{}

	denylist map[string]time.Time // access token -> denylist record expiry

	logger *slog.Logger

	// now is the clock; tests override it to exercise expiry paths
	// without sleeping.
	now func() time.Time
}

// Compile-time interface checks.
var (
	_ storage.FlowStore  = (*Store)(nil)
	_ storage.TokenStore = (*Store)(nil)
)

// New creates a new in-memory storage instance.
func New() *Store {
	return NewWithLogger(nil)
}

// NewWithLogger creates a new in-memory storage instance with a custom logger.
func NewWithLogger(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		authCodes:            make(map[string]*storage.AuthorizationCode),
		refreshTokens:        make(map[string]string),
		refreshTokenExpiries: make(map[string]time.Time),
		userTokens:           make(map[string]map[string]struct{}),
		denylist:             make(map[string]time.Time),
		logger:               logger,
		now:                  time.Now,
	}
}

// SetClock replaces the store's time source. Tests use it to exercise
// expiry behavior without sleeping.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SaveAuthorizationCode stores an issued authorization code.
func (s *Store) SaveAuthorizationCode(_ context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The clock is guarded by the same lock as the maps.
	if !code.ExpiresAt.After(s.now()) {
		return fmt.Errorf("authorization code already expired")
	}

	cp := *code
	s.authCodes[code.Code] = &cp
	return nil
}

// RedeemAuthorizationCode atomically retrieves and deletes a code. The
// deletion happens under the store lock before the payload is returned, so
// at most one concurrent redemption wins.
func (s *Store) RedeemAuthorizationCode(_ context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ac, ok := s.authCodes[code]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	delete(s.authCodes, code)

	if s.now().After(ac.ExpiresAt) {
		return nil, storage.ErrAuthorizationCodeExpired
	}

	cp := *ac
	return &cp, nil
}

// SaveRefreshToken stores the token record and the user's set membership
// together.
func (s *Store) SaveRefreshToken(_ context.Context, token, userID string, expiresAt time.Time) error {
	if token == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	if userID == "" {
		return fmt.Errorf("userID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !expiresAt.After(s.now()) {
		return fmt.Errorf("refresh token already expired")
	}

	s.refreshTokens[token] = userID
	s.refreshTokenExpiries[token] = expiresAt
	set, ok := s.userTokens[userID]
	if !ok {
		set = make(map[string]struct{})
		s.userTokens[userID] = set
	}
	set[token] = struct{}{}
	return nil
}

// GetRefreshTokenUser returns the owning user ID for a refresh token.
func (s *Store) GetRefreshTokenUser(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.refreshTokens[token]
	if !ok || s.expiredLocked(token) {
		s.dropTokenLocked(token)
		return "", storage.ErrTokenNotFound
	}
	if userID == storage.RevokedMarker {
		return "", storage.ErrTokenRevoked
	}
	return userID, nil
}

// RotateOutRefreshToken deletes the token record and its set membership.
// Exactly one of any number of concurrent calls for the same token
// succeeds.
func (s *Store) RotateOutRefreshToken(_ context.Context, token, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[token]; !ok || s.expiredLocked(token) {
		s.dropTokenLocked(token)
		return fmt.Errorf("%w: already rotated or expired", storage.ErrTokenNotFound)
	}

	delete(s.refreshTokens, token)
	delete(s.refreshTokenExpiries, token)
	if set, ok := s.userTokens[userID]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(s.userTokens, userID)
		}
	}
	return nil
}

// ListUserRefreshTokens returns the user's active refresh tokens.
func (s *Store) ListUserRefreshTokens(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.userTokens[userID]
	tokens := make([]string, 0, len(set))
	for token := range set {
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// PurgeUserRefreshTokens deletes every listed token record and clears the
// user's set in one locked section.
func (s *Store) PurgeUserRefreshTokens(_ context.Context, userID string, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range tokens {
		delete(s.refreshTokens, token)
		delete(s.refreshTokenExpiries, token)
	}
	delete(s.userTokens, userID)
	return nil
}

// RevokeAccessToken records a denylist entry expiring after ttl.
func (s *Store) RevokeAccessToken(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("denylist ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.denylist[token] = s.now().Add(ttl)
	return nil
}

// IsAccessTokenRevoked reports whether an unexpired denylist record exists.
func (s *Store) IsAccessTokenRevoked(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.denylist[token]
	if !ok {
		return false, nil
	}
	if s.now().After(expiry) {
		delete(s.denylist, token)
		return false, nil
	}
	return true, nil
}

// RevokeRefreshToken overwrites the token record with the revocation
// marker and drops the set membership.
func (s *Store) RevokeRefreshToken(_ context.Context, token, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("denylist ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens[token] = storage.RevokedMarker
	s.refreshTokenExpiries[token] = s.now().Add(ttl)
	if set, ok := s.userTokens[userID]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(s.userTokens, userID)
		}
	}
	return nil
}

// expiredLocked reports whether a refresh token record has outlived its
// TTL. Callers must hold s.mu.
func (s *Store) expiredLocked(token string) bool {
	expiry, ok := s.refreshTokenExpiries[token]
	return ok && s.now().After(expiry)
}

// dropTokenLocked lazily removes an expired token record. Callers must
// hold s.mu.
func (s *Store) dropTokenLocked(token string) {
	userID, ok := s.refreshTokens[token]
	if !ok || !s.expiredLocked(token) {
		return
	}
	delete(s.refreshTokens, token)
	delete(s.refreshTokenExpiries, token)
	if set, ok := s.userTokens[userID]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(s.userTokens, userID)
		}
	}
}
