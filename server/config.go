package server

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Defaults applied by applyDefaults when the corresponding field is unset.
const (
	DefaultIssuer                = "http://localhost:8080"
	DefaultAccessTokenExpiresIn  = "1h"
	DefaultRefreshTokenExpiresIn = "7d"
	DefaultAuthorizationCodeTTL  = 5 * time.Minute
	DefaultIDTokenTTL            = time.Hour
	DefaultLoginRateLimit        = 10
	DefaultLoginRateBurst        = 5
)

// DefaultExpirySeconds is used when an expiry string cannot be parsed.
const DefaultExpirySeconds = 3600

// Config holds the token server settings. Fields are populated from the
// environment by ConfigFromEnv, or set directly in code.
type Config struct {
	// Issuer is the value placed in the iss claim of ID tokens.
	Issuer string `env:"IDP_DOMAIN"`

	// JWTSecret is the HMAC key for signing tokens. Required.
	JWTSecret string `env:"JWT_SECRET"`

	// AccessTokenExpiresIn and RefreshTokenExpiresIn use the compact
	// duration form accepted by ParseExpirySeconds, e.g. "30m", "2h", "7d".
	AccessTokenExpiresIn  string `env:"JWT_ACCESS_TOKEN_EXPIRES_IN"`
	RefreshTokenExpiresIn string `env:"JWT_REFRESH_TOKEN_EXPIRES_IN"`

	// AuthorizationCodeTTL bounds how long an issued code may be redeemed.
	AuthorizationCodeTTL time.Duration `env:"AUTH_CODE_TTL"`

	// IDTokenTTL bounds the exp claim of ID tokens.
	IDTokenTTL time.Duration `env:"ID_TOKEN_TTL"`

	// LoginRateLimit and LoginRateBurst shape per-IP login throttling.
	// A limit of 0 keeps the defaults; throttling is disabled by
	// leaving Server.LoginRateLimiter nil.
	LoginRateLimit int `env:"LOGIN_RATE_LIMIT"`
	LoginRateBurst int `env:"LOGIN_RATE_BURST"`
}

// ConfigFromEnv builds a Config from process environment variables and
// fills in defaults for anything unset.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.AccessTokenExpiresIn == "" {
		c.AccessTokenExpiresIn = DefaultAccessTokenExpiresIn
	}
	if c.RefreshTokenExpiresIn == "" {
		c.RefreshTokenExpiresIn = DefaultRefreshTokenExpiresIn
	}
	if c.AuthorizationCodeTTL <= 0 {
		c.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if c.IDTokenTTL <= 0 {
		c.IDTokenTTL = DefaultIDTokenTTL
	}
	if c.LoginRateLimit <= 0 {
		c.LoginRateLimit = DefaultLoginRateLimit
	}
	if c.LoginRateBurst <= 0 {
		c.LoginRateBurst = DefaultLoginRateBurst
	}
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWTSecret is required")
	}
	return nil
}

// accessTokenTTL returns the signing lifetime for access tokens.
func (c *Config) accessTokenTTL() time.Duration {
	return time.Duration(ParseExpirySeconds(c.AccessTokenExpiresIn)) * time.Second
}

// refreshTokenTTL returns the signing lifetime for refresh tokens.
func (c *Config) refreshTokenTTL() time.Duration {
	return time.Duration(ParseExpirySeconds(c.RefreshTokenExpiresIn)) * time.Second
}

var expiryPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseExpirySeconds converts a compact duration string into seconds.
// The accepted form is an integer followed by one of s, m, h, or d.
// Anything else, including bare numbers and negative values, falls
// back to DefaultExpirySeconds.
func ParseExpirySeconds(expiry string) int64 {
	m := expiryPattern.FindStringSubmatch(expiry)
	if m == nil {
		return DefaultExpirySeconds
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return DefaultExpirySeconds
	}
	switch m[2] {
	case "s":
		return n
	case "m":
		return n * 60
	case "h":
		return n * 3600
	case "d":
		return n * 86400
	}
	return DefaultExpirySeconds
}
