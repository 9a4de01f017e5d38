package server

import (
	"context"

	"github.com/authplat/oidc-idp/directory"
	"github.com/authplat/oidc-idp/security"
	"github.com/authplat/oidc-idp/storage"
)

// Authenticate verifies a username/password pair. On any mismatch,
// unknown user, or disabled account it returns the same generic error
// so callers cannot probe which part failed. The caller IP is used for
// rate limiting and auditing only.
func (s *Server) Authenticate(ctx context.Context, username, password, ip string) (*directory.User, error) {
	if s.LoginRateLimiter != nil && !s.LoginRateLimiter.Allow(ip) {
		security.Failure(ctx, s.Auditor, security.EventLogin, "", "", ip, "rate limited")
		if s.Metrics != nil {
			s.Metrics.RecordAuthFailure(ctx, "login")
		}
		return nil, Unauthorized("too many login attempts")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil || user.Disabled || !directory.VerifyPassword(password, user.PasswordHash) {
		userID := ""
		if user != nil {
			userID = user.ID
		}
		s.Logger.Debug("login failed", "username", username, "ip", ip)
		security.Failure(ctx, s.Auditor, security.EventLogin, userID, "", ip, "invalid credentials")
		if s.Metrics != nil {
			s.Metrics.RecordAuthFailure(ctx, "login")
		}
		return nil, Unauthorized("invalid username or password")
	}

	security.Success(ctx, s.Auditor, security.EventLogin, user.ID, "", ip)
	return user, nil
}

// ValidateAuthorizationRequest checks that the client exists, is
// enabled, and has registered the redirect URI, before any credentials
// are prompted for.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, clientID, redirectURI string) error {
	client, err := s.clients.FindByClientID(ctx, clientID)
	if err != nil || client.Disabled {
		return InvalidClient("unknown client")
	}
	if !client.HasRedirectURI(redirectURI) {
		return InvalidRequest("redirect URI is not registered for this client")
	}
	return nil
}

// IssueAuthorizationCode mints a single-use code binding the
// authenticated user to the requesting client. The code is opaque and
// unguessable; its payload lives only in the store.
func (s *Server) IssueAuthorizationCode(ctx context.Context, user *directory.User, clientID, ip string) (string, error) {
	now := s.now()
	code := &storage.AuthorizationCode{
		Code:      generateRandomToken(),
		UserID:    user.ID,
		ClientID:  clientID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.AuthorizationCodeTTL),
	}

	if err := s.flowStore.SaveAuthorizationCode(ctx, code); err != nil {
		s.Logger.Error("failed to save authorization code", "error", err, "client_id", clientID)
		security.Failure(ctx, s.Auditor, security.EventAuthorize, user.ID, clientID, ip, "storage failure")
		return "", ServerError("failed to issue authorization code")
	}

	security.Success(ctx, s.Auditor, security.EventAuthorize, user.ID, clientID, ip)
	if s.Metrics != nil {
		s.Metrics.RecordCodeIssued(ctx, clientID)
	}
	return code.Code, nil
}

// ExchangeAuthorizationCode redeems a code for a full token set. The
// redemption is atomic: a code used twice, even concurrently, yields
// tokens at most once. Client credentials are verified after the code
// is consumed, so a failed exchange still burns the code.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, code, clientID, clientSecret, ip string) (*TokenSet, error) {
	ac, err := s.flowStore.RedeemAuthorizationCode(ctx, code)
	if err != nil {
		s.Logger.Debug("authorization code redemption failed",
			"error", err, "code", safeTruncate(code, 8), "client_id", clientID)
		return nil, s.failExchange(ctx, "", clientID, ip, "code redemption failed",
			InvalidGrant("invalid or expired authorization code"))
	}

	if ac.ClientID != clientID {
		return nil, s.failExchange(ctx, ac.UserID, clientID, ip, "client mismatch",
			InvalidGrant("invalid or expired authorization code"))
	}

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, s.failExchange(ctx, ac.UserID, clientID, ip, "client authentication failed", err)
	}

	user, err := s.users.FindByID(ctx, ac.UserID)
	if err != nil || user.Disabled {
		return nil, s.failExchange(ctx, ac.UserID, clientID, ip, "user unavailable",
			InvalidGrant("user not found or disabled"))
	}

	if s.Metrics != nil {
		s.Metrics.RecordCodeRedeemed(ctx, clientID, true)
	}
	return s.IssueTokenSet(ctx, user, client, ip)
}

// authenticateClient resolves the client and checks its secret. All
// failure modes collapse into the same invalid_client error.
func (s *Server) authenticateClient(ctx context.Context, clientID, clientSecret string) (*directory.Client, error) {
	client, err := s.clients.FindByClientID(ctx, clientID)
	if err != nil || client.Disabled || !client.VerifySecret(clientSecret) {
		return nil, InvalidClient("client authentication failed")
	}
	return client, nil
}

// failExchange records the failure in the audit trail and metrics, then
// returns the protocol error to hand to the caller.
func (s *Server) failExchange(ctx context.Context, userID, clientID, ip, reason string, err error) error {
	security.Failure(ctx, s.Auditor, security.EventToken, userID, clientID, ip, reason)
	if s.Metrics != nil {
		s.Metrics.RecordCodeRedeemed(ctx, clientID, false)
		s.Metrics.RecordAuthFailure(ctx, "exchange")
	}
	return err
}
