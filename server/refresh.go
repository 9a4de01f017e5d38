package server

import (
	"context"

	"github.com/authplat/oidc-idp/security"
)

// Refresh rotates a refresh token: the presented token is atomically
// retired and a fresh token set is minted. The store's existence record
// is the authority on validity; a token absent from the store is dead
// regardless of what its signature says. Of concurrent refreshes with
// the same token, at most one wins.
func (s *Server) Refresh(ctx context.Context, refreshToken, clientID, clientSecret, ip string) (*TokenSet, error) {
	userID, err := s.tokenStore.GetRefreshTokenUser(ctx, refreshToken)
	if err != nil {
		s.Logger.Debug("refresh token lookup failed",
			"error", err, "token", safeTruncate(refreshToken, 8), "client_id", clientID)
		return nil, s.failRefresh(ctx, "", clientID, ip, "unknown or revoked refresh token",
			InvalidGrant("invalid refresh token"))
	}

	// The store record, not the exp claim, decides whether this token
	// is alive. Verification only checks the signature and claims.
	claims, err := s.signer.Verify(refreshToken, true)
	if err != nil {
		return nil, s.failRefresh(ctx, userID, clientID, ip, "signature verification failed",
			InvalidGrant("invalid refresh token"))
	}
	if claims.ClientID != clientID {
		return nil, s.failRefresh(ctx, userID, clientID, ip, "client mismatch",
			InvalidGrant("invalid refresh token"))
	}

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, s.failRefresh(ctx, userID, clientID, ip, "client authentication failed", err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil || user.Disabled {
		return nil, s.failRefresh(ctx, userID, clientID, ip, "user unavailable",
			InvalidGrant("user not found or disabled"))
	}

	// Rotate out before minting. The losing side of a concurrent
	// refresh fails here and never reaches issuance.
	if err := s.tokenStore.RotateOutRefreshToken(ctx, refreshToken, userID); err != nil {
		return nil, s.failRefresh(ctx, userID, clientID, ip, "token already rotated",
			InvalidGrant("invalid refresh token"))
	}

	if s.Metrics != nil {
		s.Metrics.RecordTokenRefreshed(ctx, clientID)
	}
	return s.IssueTokenSet(ctx, user, client, ip)
}

func (s *Server) failRefresh(ctx context.Context, userID, clientID, ip, reason string, err error) error {
	security.Failure(ctx, s.Auditor, security.EventToken, userID, clientID, ip, reason)
	if s.Metrics != nil {
		s.Metrics.RecordAuthFailure(ctx, "refresh")
	}
	return err
}

// Token type hints accepted by Revoke (RFC 7009 §2.1).
const (
	TokenTypeHintAccess  = "access_token"
	TokenTypeHintRefresh = "refresh_token"
)

// Revoke places a token on the denylist for whatever natural lifetime
// it has left. Revoking a token that is already expired is a no-op: its
// exp claim already keeps it out. The requesting client must own the
// token.
func (s *Server) Revoke(ctx context.Context, tok, tokenTypeHint, clientID, clientSecret, ip string) error {
	if _, err := s.authenticateClient(ctx, clientID, clientSecret); err != nil {
		security.Failure(ctx, s.Auditor, security.EventRevoke, "", clientID, ip, "client authentication failed")
		return err
	}

	// Expiry is deliberately ignored here so an expired but otherwise
	// genuine token can still be inspected.
	claims, err := s.signer.Verify(tok, true)
	if err != nil {
		security.Failure(ctx, s.Auditor, security.EventRevoke, "", clientID, ip, "token not decodable")
		return InvalidRequest("invalid token")
	}
	if claims.ClientID != clientID {
		security.Failure(ctx, s.Auditor, security.EventRevoke, claims.Subject, clientID, ip, "client mismatch")
		return InvalidGrant("token was not issued to this client")
	}

	remaining := claims.ExpiresIn(s.now())
	if remaining <= 0 {
		security.Success(ctx, s.Auditor, security.EventRevoke, claims.Subject, clientID, ip)
		return nil
	}

	if tokenTypeHint == TokenTypeHintRefresh {
		err = s.tokenStore.RevokeRefreshToken(ctx, tok, claims.Subject, remaining)
	} else {
		err = s.tokenStore.RevokeAccessToken(ctx, tok, remaining)
	}
	if err != nil {
		s.Logger.Error("failed to record revocation", "error", err, "client_id", clientID)
		security.Failure(ctx, s.Auditor, security.EventRevoke, claims.Subject, clientID, ip, "storage failure")
		return ServerError("failed to revoke token")
	}

	security.Success(ctx, s.Auditor, security.EventRevoke, claims.Subject, clientID, ip)
	if s.Metrics != nil {
		tokenType := TokenTypeHintAccess
		if tokenTypeHint == TokenTypeHintRefresh {
			tokenType = TokenTypeHintRefresh
		}
		s.Metrics.RecordTokenRevoked(ctx, clientID, tokenType)
	}
	return nil
}

// Logout retires every active refresh token the user holds, in one
// store transaction, and returns the front-channel logout URIs of the
// distinct clients those tokens were issued to. A user with no active
// tokens gets an empty list and no state change.
func (s *Server) Logout(ctx context.Context, userID, ip string) ([]string, error) {
	tokens, err := s.tokenStore.ListUserRefreshTokens(ctx, userID)
	if err != nil {
		s.Logger.Error("failed to list refresh tokens", "error", err, "user_id", userID)
		security.Failure(ctx, s.Auditor, security.EventLogout, userID, "all", ip, "storage failure")
		return nil, ServerError("logout failed")
	}
	if len(tokens) == 0 {
		return []string{}, nil
	}

	if err := s.tokenStore.PurgeUserRefreshTokens(ctx, userID, tokens); err != nil {
		s.Logger.Error("failed to purge refresh tokens", "error", err, "user_id", userID)
		security.Failure(ctx, s.Auditor, security.EventLogout, userID, "all", ip, "storage failure")
		return nil, ServerError("logout failed")
	}
	security.Success(ctx, s.Auditor, security.EventLogout, userID, "all", ip)

	clientIDs := s.clientIDsFromTokens(tokens)
	if len(clientIDs) == 0 {
		if s.Metrics != nil {
			s.Metrics.RecordLogout(ctx, 0)
		}
		return []string{}, nil
	}

	clients, err := s.clients.FindManyWithLogoutURI(ctx, clientIDs)
	if err != nil {
		s.Logger.Error("failed to resolve logout clients", "error", err, "user_id", userID)
		security.Failure(ctx, s.Auditor, security.EventLogout, userID, "all", ip, "client lookup failure")
		return nil, ServerError("logout failed")
	}

	uris := make([]string, 0, len(clients))
	for _, c := range clients {
		if c.FrontChannelLogoutURI != "" {
			uris = append(uris, c.FrontChannelLogoutURI)
		}
	}
	if s.Metrics != nil {
		s.Metrics.RecordLogout(ctx, len(uris))
	}
	return uris, nil
}

// clientIDsFromTokens extracts the distinct clientId claims from the
// purged tokens, preserving first-seen order. Tokens that no longer
// decode are skipped: they are gone from the store either way.
func (s *Server) clientIDsFromTokens(tokens []string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, t := range tokens {
		claims, err := s.signer.Verify(t, true)
		if err != nil || claims.ClientID == "" {
			continue
		}
		if _, ok := seen[claims.ClientID]; ok {
			continue
		}
		seen[claims.ClientID] = struct{}{}
		ids = append(ids, claims.ClientID)
	}
	return ids
}
