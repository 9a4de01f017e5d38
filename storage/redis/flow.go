package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/authplat/oidc-idp/storage"
)

// authorizationCodeJSON is the stored representation of an authorization code.
type authorizationCodeJSON struct {
	Code      string `json:"code"`
	UserID    string `json:"user_id"`
	ClientID  string `json:"client_id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func toAuthorizationCodeJSON(c *storage.AuthorizationCode) *authorizationCodeJSON {
	return &authorizationCodeJSON{
		Code:      c.Code,
		UserID:    c.UserID,
		ClientID:  c.ClientID,
		CreatedAt: c.CreatedAt.Unix(),
		ExpiresAt: c.ExpiresAt.Unix(),
	}
}

func fromAuthorizationCodeJSON(j *authorizationCodeJSON) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:      j.Code,
		UserID:    j.UserID,
		ClientID:  j.ClientID,
		CreatedAt: time.Unix(j.CreatedAt, 0),
		ExpiresAt: time.Unix(j.ExpiresAt, 0),
	}
}

// SaveAuthorizationCode stores an issued authorization code with a TTL
// derived from its expiry.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	start := time.Now()
	defer func() { s.recordOp(ctx, "save_authorization_code", start, err) }()

	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	data, err := json.Marshal(toAuthorizationCodeJSON(code))
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	ttl := calculateTTL(code.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired")
	}

	key := s.codeKey(code.Code)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", safeTruncate(code.Code, tokenIDLogLength),
		"ttl", ttl)
	return nil
}

// RedeemAuthorizationCode atomically retrieves and deletes an authorization
// code via GETDEL. Only one of any number of concurrent redemption attempts
// observes the payload; the code is gone for everyone else by the time this
// call returns.
func (s *Store) RedeemAuthorizationCode(ctx context.Context, code string) (ac *storage.AuthorizationCode, err error) {
	start := time.Now()
	defer func() { s.recordOp(ctx, "redeem_authorization_code", start, err) }()

	key := s.codeKey(code)

	data, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}

	var j authorizationCodeJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}
	authCode := fromAuthorizationCodeJSON(&j)

	// TTL should have removed it, but double-check the embedded expiry.
	if time.Now().After(authCode.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", storage.ErrAuthorizationCodeExpired,
			safeTruncate(code, tokenIDLogLength))
	}

	s.logger.Debug("Redeemed authorization code",
		"code_prefix", safeTruncate(code, tokenIDLogLength))
	return authCode, nil
}
