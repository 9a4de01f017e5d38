// Package idp exposes the OAuth 2.0 / OIDC endpoints over HTTP:
// authorization, login, token, revocation, userinfo, and global logout.
// Request parsing and response encoding live here; all credential
// semantics live in the server package.
package idp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/authplat/oidc-idp/security"
	"github.com/authplat/oidc-idp/server"
)

// Grant types accepted by the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// Handler serves the HTTP surface for a Server.
type Handler struct {
	server *server.Server
	logger *slog.Logger

	// TrustProxy enables X-Forwarded-For / X-Real-IP handling. Leave
	// off unless a reverse proxy you control sits in front.
	TrustProxy        bool
	TrustedProxyCount int
}

// NewHandler wraps a Server with HTTP endpoints.
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{server: srv, logger: logger}
}

// Routes builds the endpoint router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/oauth/authorize", h.handleAuthorize)
	r.Post("/login", h.handleLogin)
	r.Post("/oauth/token", h.handleToken)
	r.Post("/oauth/revoke", h.handleRevoke)
	r.Get("/oauth/userinfo", h.handleUserInfo)
	r.Get("/logout", h.handleLogout)
	return r
}

// handleAuthorize validates an authorization request and points the
// browser at the login page, carrying the request parameters along.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")

	if clientID == "" || redirectURI == "" || q.Get("response_type") != "code" {
		h.writeError(w, wireError(server.InvalidRequest("client_id, redirect_uri and response_type=code are required")))
		return
	}
	if err := h.server.ValidateAuthorizationRequest(r.Context(), clientID, redirectURI); err != nil {
		h.writeError(w, wireError(err))
		return
	}

	loginURL := "/login?" + url.Values{
		"client_id":    {clientID},
		"redirect_uri": {redirectURI},
		"state":        {state},
	}.Encode()
	h.writeJSON(w, http.StatusOK, redirectResponse{RedirectURL: loginURL})
}

// handleLogin authenticates the submitted credentials and, on success,
// issues an authorization code bound to the requesting client. The
// response carries the client redirect URI with code and state
// appended.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, wireError(server.InvalidRequest("malformed form body")))
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	clientID := r.PostFormValue("client_id")
	redirectURI := r.PostFormValue("redirect_uri")
	state := r.PostFormValue("state")

	if username == "" || password == "" || clientID == "" || redirectURI == "" {
		h.writeError(w, wireError(server.InvalidRequest("username, password, client_id and redirect_uri are required")))
		return
	}
	if err := h.server.ValidateAuthorizationRequest(r.Context(), clientID, redirectURI); err != nil {
		h.writeError(w, wireError(err))
		return
	}

	ip := h.clientIP(r)
	user, err := h.server.Authenticate(r.Context(), username, password, ip)
	if err != nil {
		h.writeError(w, wireError(err))
		return
	}
	code, err := h.server.IssueAuthorizationCode(r.Context(), user, clientID, ip)
	if err != nil {
		h.writeError(w, wireError(err))
		return
	}

	loc := redirectURI + "?" + url.Values{"code": {code}, "state": {state}}.Encode()
	h.writeJSON(w, http.StatusOK, redirectResponse{RedirectURL: loc})
}

// handleToken serves both grants of the token endpoint. Requests are
// form encoded per RFC 6749 §4.1.3.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, wireError(server.InvalidRequest("malformed form body")))
		return
	}
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	ip := h.clientIP(r)

	var (
		set *server.TokenSet
		err error
	)
	switch grantType := r.PostFormValue("grant_type"); grantType {
	case GrantTypeAuthorizationCode:
		set, err = h.server.ExchangeAuthorizationCode(r.Context(),
			r.PostFormValue("code"), clientID, clientSecret, ip)
	case GrantTypeRefreshToken:
		set, err = h.server.Refresh(r.Context(),
			r.PostFormValue("refresh_token"), clientID, clientSecret, ip)
	default:
		err = server.UnsupportedGrantType("unsupported grant_type " + grantType)
	}
	if err != nil {
		h.writeError(w, wireError(err))
		return
	}
	h.writeJSON(w, http.StatusOK, set)
}

// handleRevoke revokes a token on behalf of its owning client. A
// completed revocation, including the no-op on an already-expired
// token, returns an empty JSON object.
func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, wireError(server.InvalidRequest("malformed form body")))
		return
	}
	err := h.server.Revoke(r.Context(),
		r.PostFormValue("token"),
		r.PostFormValue("token_type_hint"),
		r.PostFormValue("client_id"),
		r.PostFormValue("client_secret"),
		h.clientIP(r))
	if err != nil {
		h.writeError(w, wireError(err))
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

// handleUserInfo returns the directory record behind a bearer token.
func (h *Handler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := bearerToken(r)
	if !ok {
		h.writeError(w, wireError(server.Unauthorized("missing bearer token")))
		return
	}
	user, err := h.server.UserInfo(r.Context(), accessToken)
	if err != nil {
		h.writeError(w, wireError(err))
		return
	}
	h.writeJSON(w, http.StatusOK, userInfoResponse{
		Sub:      user.ID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
	})
}

// handleLogout ends every session of the token's subject and returns
// the front-channel logout URLs of the affected clients. An absent or
// unverifiable token yields an empty list rather than an error, so the
// endpoint is safe to call from a browser unconditionally.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		h.writeJSON(w, http.StatusOK, logoutResponse{LogoutURLs: []string{}})
		return
	}

	claims, err := h.server.VerifyAccessToken(r.Context(), tok)
	if err != nil {
		h.writeJSON(w, http.StatusOK, logoutResponse{LogoutURLs: []string{}})
		return
	}
	urls, err := h.server.Logout(r.Context(), claims.Subject, h.clientIP(r))
	if err != nil {
		h.writeJSON(w, http.StatusOK, logoutResponse{LogoutURLs: []string{}})
		return
	}
	h.writeJSON(w, http.StatusOK, logoutResponse{LogoutURLs: urls})
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.TrustProxy, h.TrustedProxyCount)
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, oe *OAuthError) {
	h.writeJSON(w, oe.Status, oe)
}
