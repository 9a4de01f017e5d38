// Package server implements the credential and token lifecycle core:
// password authentication, authorization code issuance and redemption,
// OIDC token minting, refresh rotation, revocation, and global logout.
//
// All failures returned to callers are *Error values carrying an OAuth
// error code and a generic description. Operational detail is written
// to the structured logger and the audit trail instead.
package server

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/authplat/oidc-idp/directory"
	"github.com/authplat/oidc-idp/instrumentation"
	"github.com/authplat/oidc-idp/security"
	"github.com/authplat/oidc-idp/storage"
	"github.com/authplat/oidc-idp/token"
)

// Server coordinates directories, the token signer, and storage to run
// the full OAuth flow. Construct it with New; the exported fields may
// be replaced before first use to customize observability.
type Server struct {
	users      directory.UserDirectory
	clients    directory.ClientDirectory
	signer     *token.Signer
	flowStore  storage.FlowStore
	tokenStore storage.TokenStore
	config     *Config

	// Auditor receives security events. Defaults to a slog-backed
	// recorder; set to nil to disable auditing entirely.
	Auditor security.Recorder

	// LoginRateLimiter throttles Authenticate per source IP. Nil
	// disables throttling.
	LoginRateLimiter *security.RateLimiter

	// Logger receives operational detail that is withheld from clients.
	Logger *slog.Logger

	// Metrics is optional; nil disables metric recording.
	Metrics *instrumentation.Metrics

	now func() time.Time
}

// New validates dependencies and returns a ready Server.
func New(users directory.UserDirectory, clients directory.ClientDirectory, signer *token.Signer, flowStore storage.FlowStore, tokenStore storage.TokenStore, cfg *Config) (*Server, error) {
	if users == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if clients == nil {
		return nil, fmt.Errorf("client directory is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("token signer is required")
	}
	if flowStore == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.Default()
	return &Server{
		users:      users,
		clients:    clients,
		signer:     signer,
		flowStore:  flowStore,
		tokenStore: tokenStore,
		config:     cfg,
		Auditor:    security.NewAuditor(logger, true),
		LoginRateLimiter: security.NewRateLimiter(
			float64(cfg.LoginRateLimit)/60.0, cfg.LoginRateBurst, logger),
		Logger: logger,
		now:    time.Now,
	}, nil
}

// Configuration returns the active configuration.
func (s *Server) Configuration() *Config { return s.config }

// generateRandomToken produces an unguessable opaque string for
// authorization codes.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}

// safeTruncate shortens secrets before they reach logs.
func safeTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
