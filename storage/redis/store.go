// Package redis provides a Redis-backed implementation of the credential
// store contracts. Atomicity of the redemption, rotation, and logout paths
// is delegated to single commands (GETDEL) and MULTI/EXEC transactions.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redisgo "github.com/redis/go-redis/v9"

	"github.com/authplat/oidc-idp/instrumentation"
	"github.com/authplat/oidc-idp/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Redis keys.
	DefaultKeyPrefix = "idp:"

	// tokenIDLogLength is the number of characters to include when logging
	// token values.
	tokenIDLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification.
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Redis storage backend.
type Config struct {
	// Address is the Redis server address (required), e.g. "localhost:6379".
	Address string

	// Password is the optional password for Redis authentication.
	Password string

	// DB is the optional database number (default 0).
	DB int

	// KeyPrefix is the prefix for all keys (default "idp:").
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections.
	TLS *tls.Config

	// Logger is the optional structured logger (default slog.Default()).
	Logger *slog.Logger
}

// Store is a Redis-backed implementation of the storage interfaces.
type Store struct {
	client  redisgo.UniversalClient
	prefix  string
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Compile-time interface checks.
var (
	_ storage.FlowStore  = (*Store)(nil)
	_ storage.TokenStore = (*Store)(nil)
)

// New creates a new Redis-backed storage instance and verifies the
// connection before returning.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redisgo.NewClient(&redisgo.Options{
		Addr:      cfg.Address,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: cfg.TLS,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := newStore(client, cfg.KeyPrefix, cfg.Logger)
	s.logger.Info("Connected to Redis storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", s.prefix)
	return s, nil
}

// NewWithClient creates a Store with a pre-configured client. This is
// useful for testing with miniredis and for sentinel/cluster clients.
func NewWithClient(client redisgo.UniversalClient, keyPrefix string, logger *slog.Logger) *Store {
	return newStore(client, keyPrefix, logger)
}

func newStore(client redisgo.UniversalClient, keyPrefix string, logger *slog.Logger) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		prefix: keyPrefix,
		logger: logger,
	}
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	err := s.client.Close()
	s.logger.Info("Redis storage connection closed")
	return err
}

// SetInstrumentation enables storage operation metrics.
func (s *Store) SetInstrumentation(m *instrumentation.Metrics) {
	s.metrics = m
}

// recordOp reports one storage operation to the metrics pipeline.
func (s *Store) recordOp(ctx context.Context, op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	s.metrics.RecordStorageOperation(ctx, op, result, float64(time.Since(start).Microseconds())/1000)
}

// Key layout mirrors the logical store contract:
//
//	<prefix>auth_code:<code>               -> JSON code record, EX 5m
//	<prefix>refresh_token:<token>          -> user ID, EX 7d (or revocation marker)
//	<prefix>user_refresh_tokens:<userID>   -> set of active refresh tokens
//	<prefix>access_token_blacklist:<token> -> revocation marker, EX remaining life
func (s *Store) codeKey(code string) string {
	return s.prefix + "auth_code:" + code
}

func (s *Store) refreshTokenKey(token string) string {
	return s.prefix + "refresh_token:" + token
}

func (s *Store) userTokensKey(userID string) string {
	return s.prefix + "user_refresh_tokens:" + userID
}

func (s *Store) blacklistKey(token string) string {
	return s.prefix + "access_token_blacklist:" + token
}

// calculateTTL returns the remaining TTL until expiresAt, truncated to
// whole seconds the way Redis stores expiries.
func calculateTTL(expiresAt time.Time) time.Duration {
	return time.Until(expiresAt).Truncate(time.Second)
}

// safeTruncate truncates a string to maxLen characters without panicking.
func safeTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// isNilError checks if the error indicates a nil/not-found result.
func isNilError(err error) bool {
	return errors.Is(err, redisgo.Nil)
}
