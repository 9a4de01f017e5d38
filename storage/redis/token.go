package redis

import (
	"context"
	"fmt"
	"time"

	redisgo "github.com/redis/go-redis/v9"

	"github.com/authplat/oidc-idp/storage"
)

// SaveRefreshToken stores the token's existence record and adds it to the
// owning user's active set in a single MULTI/EXEC transaction.
//
// The active set itself carries no TTL: membership is pruned by rotation,
// revocation, and logout, not by store expiry.
func (s *Store) SaveRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) (err error) {
	start := time.Now()
	defer func() { s.recordOp(ctx, "save_refresh_token", start, err) }()

	if token == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	if userID == "" {
		return fmt.Errorf("userID cannot be empty")
	}

	ttl := calculateTTL(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redisgo.Pipeliner) error {
		pipe.Set(ctx, s.refreshTokenKey(token), userID, ttl)
		pipe.SAdd(ctx, s.userTokensKey(userID), token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	s.logger.Debug("Saved refresh token",
		"user_id", userID,
		"expires_at", expiresAt)
	return nil
}

// GetRefreshTokenUser returns the owning user ID for a refresh token.
func (s *Store) GetRefreshTokenUser(ctx context.Context, token string) (userID string, err error) {
	start := time.Now()
	defer func() { s.recordOp(ctx, "get_refresh_token", start, err) }()

	val, err := s.client.Get(ctx, s.refreshTokenKey(token)).Result()
	if err != nil {
		if isNilError(err) {
			return "", storage.ErrTokenNotFound
		}
		return "", fmt.Errorf("failed to get refresh token: %w", err)
	}
	if val == storage.RevokedMarker {
		return "", storage.ErrTokenRevoked
	}

	// TTL is managed by Redis, so if the key exists it is not expired.
	return val, nil
}

// RotateOutRefreshToken atomically deletes the token record and removes it
// from the user's active set. The DEL count decides the winner: of any
// number of concurrent rotations of the same token, exactly one observes a
// deletion and may proceed to mint a replacement.
func (s *Store) RotateOutRefreshToken(ctx context.Context, token, userID string) (err error) {
	start := time.Now()
	defer func() { s.recordOp(ctx, "rotate_out_refresh_token", start, err) }()

	var delCmd *redisgo.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redisgo.Pipeliner) error {
		delCmd = pipe.Del(ctx, s.refreshTokenKey(token))
		pipe.SRem(ctx, s.userTokensKey(userID), token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to rotate out refresh token: %w", err)
	}
	if delCmd.Val() == 0 {
		return fmt.Errorf("%w: already rotated or expired", storage.ErrTokenNotFound)
	}

	s.logger.Debug("Rotated out refresh token",
		"user_id", userID,
		"token_prefix", safeTruncate(token, tokenIDLogLength))
	return nil
}

// ListUserRefreshTokens returns all members of the user's active set.
func (s *Store) ListUserRefreshTokens(ctx context.Context, userID string) (tokens []string, err error) {
	start := time.Now()
	defer func() { s.recordOp(ctx, "list_user_refresh_tokens", start, err) }()

	tokens, err = s.client.SMembers(ctx, s.userTokensKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	return tokens, nil
}

// PurgeUserRefreshTokens deletes every listed token record and the user's
// active set in one MULTI/EXEC transaction, so a concurrent refresh cannot
// observe a half-logged-out state.
func (s *Store) PurgeUserRefreshTokens(ctx context.Context, userID string, tokens []string) (err error) {
	start := time.Now()
	defer func() { s.recordOp(ctx, "purge_user_refresh_tokens", start, err) }()

	_, err = s.client.TxPipelined(ctx, func(pipe redisgo.Pipeliner) error {
		for _, token := range tokens {
			pipe.Del(ctx, s.refreshTokenKey(token))
		}
		pipe.Del(ctx, s.userTokensKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to purge refresh tokens: %w", err)
	}

	s.logger.Debug("Purged user refresh tokens",
		"user_id", userID,
		"count", len(tokens))
	return nil
}

// RevokeAccessToken writes a denylist record keyed by the exact token
// value. The record self-expires after ttl; it is never explicitly deleted.
func (s *Store) RevokeAccessToken(ctx context.Context, token string, ttl time.Duration) (err error) {
	start := time.Now()
	defer func() { s.recordOp(ctx, "revoke_access_token", start, err) }()

	if ttl <= 0 {
		return fmt.Errorf("denylist ttl must be positive")
	}

	if err := s.client.Set(ctx, s.blacklistKey(token), storage.RevokedMarker, ttl).Err(); err != nil {
		return fmt.Errorf("failed to denylist access token: %w", err)
	}

	s.logger.Debug("Denylisted access token",
		"token_prefix", safeTruncate(token, tokenIDLogLength),
		"ttl", ttl)
	return nil
}

// IsAccessTokenRevoked reports whether a denylist record exists for the token.
func (s *Store) IsAccessTokenRevoked(ctx context.Context, token string) (revoked bool, err error) {
	start := time.Now()
	defer func() { s.recordOp(ctx, "is_access_token_revoked", start, err) }()

	n, err := s.client.Exists(ctx, s.blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check denylist: %w", err)
	}
	return n > 0, nil
}

// RevokeRefreshToken overwrites the token's existence record with the
// revocation marker and drops it from the user's active set in one
// transaction.
func (s *Store) RevokeRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) (err error) {
	start := time.Now()
	defer func() { s.recordOp(ctx, "revoke_refresh_token", start, err) }()

	if ttl <= 0 {
		return fmt.Errorf("denylist ttl must be positive")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redisgo.Pipeliner) error {
		pipe.Set(ctx, s.refreshTokenKey(token), storage.RevokedMarker, ttl)
		pipe.SRem(ctx, s.userTokensKey(userID), token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	s.logger.Debug("Revoked refresh token",
		"user_id", userID,
		"token_prefix", safeTruncate(token, tokenIDLogLength),
		"ttl", ttl)
	return nil
}
