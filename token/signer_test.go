package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner(""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, err := NewSigner("secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	in := &Claims{
		Username: "alice",
		Roles:    []string{"user", "admin"},
		ClientID: "web-app",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1",
		},
	}
	signed, err := signer.Sign(in, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	out, err := signer.Verify(signed, false)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Subject != "user-1" || out.Username != "alice" || out.ClientID != "web-app" {
		t.Errorf("claims round trip mismatch: %+v", out)
	}
	if len(out.Roles) != 2 {
		t.Errorf("roles = %v, want 2 entries", out.Roles)
	}
	if out.ID == "" {
		t.Error("expected a generated jti")
	}
	if out.ExpiresAt == nil || out.IssuedAt == nil {
		t.Fatal("missing exp or iat")
	}
	if got := out.ExpiresAt.Sub(out.IssuedAt.Time); got != time.Hour {
		t.Errorf("exp - iat = %v, want 1h", got)
	}
}

func TestSignProducesDistinctTokens(t *testing.T) {
	signer, _ := NewSigner("secret")
	claims := &Claims{Username: "alice"}

	a, err := signer.Sign(claims, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, err := signer.Sign(claims, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if a == b {
		t.Error("two tokens with identical claims are byte-identical")
	}
}

func TestVerifyRejectsForgedToken(t *testing.T) {
	signer, _ := NewSigner("secret")
	other, _ := NewSigner("different-secret")

	signed, err := other.Sign(&Claims{Username: "mallory"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := signer.Verify(signed, false); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	// A forged signature fails even when expiry checking is off.
	if _, err := signer.Verify(signed, true); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken with ignoreExpiry, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	signer, _ := NewSigner("secret")
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := signer.Verify(tok, false); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q): expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	signer, _ := NewSigner("secret")
	signer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	signed, err := signer.Sign(&Claims{Username: "alice"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	signer.now = time.Now

	if _, err := signer.Verify(signed, false); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}

	claims, err := signer.Verify(signed, true)
	if err != nil {
		t.Fatalf("Verify with ignoreExpiry: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("username = %q, want alice", claims.Username)
	}
	if claims.ExpiresIn(time.Now()) > 0 {
		t.Error("expected non-positive remaining lifetime")
	}
}

func TestExpiresIn(t *testing.T) {
	now := time.Now()
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Minute)),
	}}
	got := c.ExpiresIn(now)
	if got < 29*time.Minute || got > 30*time.Minute {
		t.Errorf("ExpiresIn = %v, want about 30m", got)
	}

	empty := &Claims{}
	if empty.ExpiresIn(now) != 0 {
		t.Errorf("ExpiresIn without exp = %v, want 0", empty.ExpiresIn(now))
	}
}
