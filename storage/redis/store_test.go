package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisgo "github.com/redis/go-redis/v9"

	"github.com/authplat/oidc-idp/storage"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redisgo.NewClient(&redisgo.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWithClient(client, "test:", logger), mr
}

func testCode(code string, ttl time.Duration) *storage.AuthorizationCode {
	now := time.Now()
	return &storage.AuthorizationCode{
		Code:      code,
		UserID:    "user-1",
		ClientID:  "web-app",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestAuthorizationCodeRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveAuthorizationCode(ctx, testCode("code-1", 5*time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode: %v", err)
	}

	got, err := s.RedeemAuthorizationCode(ctx, "code-1")
	if err != nil {
		t.Fatalf("RedeemAuthorizationCode: %v", err)
	}
	if got.UserID != "user-1" || got.ClientID != "web-app" {
		t.Errorf("payload mismatch: %+v", got)
	}

	// GETDEL consumed the key; a second redemption finds nothing.
	if _, err := s.RedeemAuthorizationCode(ctx, "code-1"); !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("second redemption: got %v, want ErrAuthorizationCodeNotFound", err)
	}
}

func TestAuthorizationCodeExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveAuthorizationCode(ctx, testCode("code-1", 5*time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode: %v", err)
	}

	mr.FastForward(6 * time.Minute)

	if _, err := s.RedeemAuthorizationCode(ctx, "code-1"); !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("got %v, want ErrAuthorizationCodeNotFound", err)
	}
}

func TestSaveAuthorizationCodeRejectsExpired(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.SaveAuthorizationCode(context.Background(), testCode("code-1", -time.Minute)); err == nil {
		t.Error("expected error for pre-expired code")
	}
}

func TestRefreshTokenLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(7 * 24 * time.Hour)

	if err := s.SaveRefreshToken(ctx, "rt-1", "user-1", exp); err != nil {
		t.Fatalf("SaveRefreshToken: %v", err)
	}

	userID, err := s.GetRefreshTokenUser(ctx, "rt-1")
	if err != nil {
		t.Fatalf("GetRefreshTokenUser: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want user-1", userID)
	}

	tokens, err := s.ListUserRefreshTokens(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListUserRefreshTokens: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "rt-1" {
		t.Errorf("tokens = %v, want [rt-1]", tokens)
	}

	if err := s.RotateOutRefreshToken(ctx, "rt-1", "user-1"); err != nil {
		t.Fatalf("RotateOutRefreshToken: %v", err)
	}
	if _, err := s.GetRefreshTokenUser(ctx, "rt-1"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("after rotation: got %v, want ErrTokenNotFound", err)
	}
	tokens, _ = s.ListUserRefreshTokens(ctx, "user-1")
	if len(tokens) != 0 {
		t.Errorf("active set not emptied: %v", tokens)
	}

	// The DEL count makes the second rotation lose.
	if err := s.RotateOutRefreshToken(ctx, "rt-1", "user-1"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("second rotation: got %v, want ErrTokenNotFound", err)
	}
}

func TestRefreshTokenNaturalExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRefreshToken(ctx, "rt-1", "user-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshToken: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	if _, err := s.GetRefreshTokenUser(ctx, "rt-1"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("got %v, want ErrTokenNotFound", err)
	}
	if err := s.RotateOutRefreshToken(ctx, "rt-1", "user-1"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("rotation after expiry: got %v, want ErrTokenNotFound", err)
	}
}

func TestPurgeUserRefreshTokens(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	for _, tok := range []string{"rt-1", "rt-2", "rt-3"} {
		if err := s.SaveRefreshToken(ctx, tok, "user-1", exp); err != nil {
			t.Fatalf("SaveRefreshToken(%s): %v", tok, err)
		}
	}
	if err := s.SaveRefreshToken(ctx, "rt-other", "user-2", exp); err != nil {
		t.Fatalf("SaveRefreshToken: %v", err)
	}

	tokens, err := s.ListUserRefreshTokens(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListUserRefreshTokens: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3", len(tokens))
	}

	if err := s.PurgeUserRefreshTokens(ctx, "user-1", tokens); err != nil {
		t.Fatalf("PurgeUserRefreshTokens: %v", err)
	}
	for _, tok := range tokens {
		if _, err := s.GetRefreshTokenUser(ctx, tok); !errors.Is(err, storage.ErrTokenNotFound) {
			t.Errorf("%s survived the purge: %v", tok, err)
		}
	}
	remaining, _ := s.ListUserRefreshTokens(ctx, "user-1")
	if len(remaining) != 0 {
		t.Errorf("active set not cleared: %v", remaining)
	}

	if _, err := s.GetRefreshTokenUser(ctx, "rt-other"); err != nil {
		t.Errorf("unrelated token purged: %v", err)
	}
}

func TestAccessTokenDenylist(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	revoked, err := s.IsAccessTokenRevoked(ctx, "at-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if revoked {
		t.Error("token revoked before any revocation")
	}

	if err := s.RevokeAccessToken(ctx, "at-1", time.Hour); err != nil {
		t.Fatalf("RevokeAccessToken: %v", err)
	}
	revoked, _ = s.IsAccessTokenRevoked(ctx, "at-1")
	if !revoked {
		t.Error("token not revoked after revocation")
	}

	// The record self-expires with the token's remaining lifetime.
	mr.FastForward(2 * time.Hour)
	revoked, _ = s.IsAccessTokenRevoked(ctx, "at-1")
	if revoked {
		t.Error("denylist record outlived its TTL")
	}
}

func TestRevokeAccessTokenRejectsNonPositiveTTL(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.RevokeAccessToken(context.Background(), "at-1", 0); err == nil {
		t.Error("expected error for zero ttl")
	}
}

func TestRevokeRefreshToken(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRefreshToken(ctx, "rt-1", "user-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshToken: %v", err)
	}
	if err := s.RevokeRefreshToken(ctx, "rt-1", "user-1", 30*time.Minute); err != nil {
		t.Fatalf("RevokeRefreshToken: %v", err)
	}

	if _, err := s.GetRefreshTokenUser(ctx, "rt-1"); !errors.Is(err, storage.ErrTokenRevoked) {
		t.Errorf("got %v, want ErrTokenRevoked", err)
	}
	tokens, _ := s.ListUserRefreshTokens(ctx, "user-1")
	if len(tokens) != 0 {
		t.Errorf("revoked token still in active set: %v", tokens)
	}

	// The marker self-expires after the revocation TTL.
	mr.FastForward(time.Hour)
	if _, err := s.GetRefreshTokenUser(ctx, "rt-1"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("after marker expiry: got %v, want ErrTokenNotFound", err)
	}
}

func TestKeyPrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisgo.NewClient(&redisgo.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := NewWithClient(client, "a:", logger)
	b := NewWithClient(client, "b:", logger)
	ctx := context.Background()

	if err := a.SaveRefreshToken(ctx, "rt-1", "user-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshToken: %v", err)
	}
	if _, err := b.GetRefreshTokenUser(ctx, "rt-1"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("prefix b sees prefix a's token: %v", err)
	}
}
