package server

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/authplat/oidc-idp/directory"
	"github.com/authplat/oidc-idp/security"
	"github.com/authplat/oidc-idp/token"
)

// TokenTypeBearer is the only token_type this server issues.
const TokenTypeBearer = "Bearer"

// refreshTokenRecordTTL bounds the store-side existence record of a
// refresh token. The signed exp claim may be configured shorter, but
// the record always ages out after seven days.
const refreshTokenRecordTTL = 7 * 24 * time.Hour

// TokenSet is the successful response of the token endpoint.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// IssueTokenSet mints the access, ID, and refresh tokens for a user and
// client, and persists the refresh token's existence record. If the
// record cannot be stored, no tokens are returned: an unstored refresh
// token could never be rotated or revoked.
func (s *Server) IssueTokenSet(ctx context.Context, user *directory.User, client *directory.Client, ip string) (*TokenSet, error) {
	base := token.Claims{
		Username: user.Username,
		Roles:    user.Roles,
		ClientID: client.ClientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.ID,
		},
	}

	accessToken, err := s.signer.Sign(&base, s.config.accessTokenTTL())
	if err != nil {
		return nil, s.failIssue(ctx, user.ID, client.ClientID, ip, "access token signing failed", err)
	}

	idClaims := base
	idClaims.Issuer = s.config.Issuer
	idClaims.Audience = jwt.ClaimStrings{client.ClientID}
	idToken, err := s.signer.Sign(&idClaims, s.config.IDTokenTTL)
	if err != nil {
		return nil, s.failIssue(ctx, user.ID, client.ClientID, ip, "id token signing failed", err)
	}

	refreshToken, err := s.signer.Sign(&base, s.config.refreshTokenTTL())
	if err != nil {
		return nil, s.failIssue(ctx, user.ID, client.ClientID, ip, "refresh token signing failed", err)
	}

	expiresAt := s.now().Add(refreshTokenRecordTTL)
	if err := s.tokenStore.SaveRefreshToken(ctx, refreshToken, user.ID, expiresAt); err != nil {
		return nil, s.failIssue(ctx, user.ID, client.ClientID, ip, "refresh token storage failed", err)
	}

	security.Success(ctx, s.Auditor, security.EventToken, user.ID, client.ClientID, ip)
	if s.Metrics != nil {
		s.Metrics.RecordTokenSetIssued(ctx, client.ClientID)
	}

	return &TokenSet{
		AccessToken:  accessToken,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    ParseExpirySeconds(s.config.AccessTokenExpiresIn),
	}, nil
}

func (s *Server) failIssue(ctx context.Context, userID, clientID, ip, reason string, err error) error {
	s.Logger.Error("token issuance failed", "error", err, "reason", reason, "client_id", clientID)
	security.Failure(ctx, s.Auditor, security.EventToken, userID, clientID, ip, reason)
	return ServerError("failed to issue tokens")
}
