// Command idp runs the OAuth 2.0 / OIDC identity provider over HTTP.
//
// Users and clients are loaded from a JSON seed file; credential state
// lives in Redis, or in process memory when no Redis address is
// configured (single-instance development only).
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	idp "github.com/authplat/oidc-idp"
	"github.com/authplat/oidc-idp/directory"
	dirmemory "github.com/authplat/oidc-idp/directory/memory"
	"github.com/authplat/oidc-idp/instrumentation"
	"github.com/authplat/oidc-idp/server"
	"github.com/authplat/oidc-idp/storage"
	storagememory "github.com/authplat/oidc-idp/storage/memory"
	storageredis "github.com/authplat/oidc-idp/storage/redis"
	"github.com/authplat/oidc-idp/token"
)

type processConfig struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"text"`
	SeedFile   string `env:"SEED_FILE" envDefault:"seed.json"`

	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX"`
	RedisTLS       bool   `env:"REDIS_TLS"`

	MetricsEnabled bool `env:"METRICS_ENABLED"`

	TrustProxy        bool `env:"TRUST_PROXY"`
	TrustedProxyCount int  `env:"TRUSTED_PROXY_COUNT"`
}

// seedData is the JSON shape of the directory seed file. Passwords and
// client secrets are given in the clear and hashed on load.
type seedData struct {
	Users []struct {
		ID       string   `json:"id"`
		Username string   `json:"username"`
		Password string   `json:"password"`
		Email    string   `json:"email"`
		Roles    []string `json:"roles"`
	} `json:"users"`
	Clients []struct {
		ClientID              string   `json:"clientId"`
		ClientSecret          string   `json:"clientSecret"`
		Name                  string   `json:"name"`
		RedirectURIs          []string `json:"redirectUris"`
		FrontChannelLogoutURI string   `json:"frontChannelLogoutUri"`
	} `json:"clients"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	proc := &processConfig{}
	if err := env.Parse(proc); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	logger := setupLogger(proc)
	slog.SetDefault(logger)

	cfg, err := server.ConfigFromEnv()
	if err != nil {
		return err
	}

	store, cleanup, err := setupStorage(proc, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	dir, err := loadDirectory(proc.SeedFile)
	if err != nil {
		return fmt.Errorf("loading seed file: %w", err)
	}

	signer, err := token.NewSigner(cfg.JWTSecret)
	if err != nil {
		return err
	}

	srv, err := server.New(dir, dir, signer, store, store, cfg)
	if err != nil {
		return err
	}
	srv.Logger = logger
	defer srv.LoginRateLimiter.Stop()

	if proc.MetricsEnabled {
		inst, err := instrumentation.New(instrumentation.Config{
			ServiceName: "oidc-idp",
			Enabled:     true,
		})
		if err != nil {
			return fmt.Errorf("setting up instrumentation: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := inst.Shutdown(shutdownCtx); err != nil {
				logger.Warn("instrumentation shutdown failed", "error", err)
			}
		}()
		srv.Metrics = inst.Metrics()
		if rs, ok := store.(*storageredis.Store); ok {
			rs.SetInstrumentation(inst.Metrics())
		}
	}

	handler := idp.NewHandler(srv, logger)
	handler.TrustProxy = proc.TrustProxy
	handler.TrustedProxyCount = proc.TrustedProxyCount

	httpServer := &http.Server{
		Addr:              proc.ListenAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", proc.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func setupLogger(proc *processConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(proc.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if proc.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func setupStorage(proc *processConfig, logger *slog.Logger) (storage.Store, func(), error) {
	if proc.RedisAddr == "" {
		logger.Warn("no REDIS_ADDR configured, using in-memory storage")
		return storagememory.NewWithLogger(logger), func() {}, nil
	}

	var tlsConfig *tls.Config
	if proc.RedisTLS {
		tlsConfig = &tls.Config{}
	}
	store, err := storageredis.New(storageredis.Config{
		Address:   proc.RedisAddr,
		Password:  proc.RedisPassword,
		DB:        proc.RedisDB,
		KeyPrefix: proc.RedisKeyPrefix,
		TLS:       tlsConfig,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing redis store", "error", err)
		}
	}, nil
}

func loadDirectory(path string) (*dirmemory.Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed seedData
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	dir := dirmemory.New()
	for _, u := range seed.Users {
		hash, err := directory.HashPassword(u.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password for %s: %w", u.Username, err)
		}
		if err := dir.AddUser(&directory.User{
			ID:           u.ID,
			Username:     u.Username,
			PasswordHash: hash,
			Email:        u.Email,
			Roles:        u.Roles,
		}); err != nil {
			return nil, err
		}
	}
	for _, c := range seed.Clients {
		hash, err := directory.HashSecret(c.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("hashing secret for %s: %w", c.ClientID, err)
		}
		if err := dir.AddClient(&directory.Client{
			ClientID:              c.ClientID,
			SecretHash:            hash,
			Name:                  c.Name,
			RedirectURIs:          c.RedirectURIs,
			FrontChannelLogoutURI: c.FrontChannelLogoutURI,
		}); err != nil {
			return nil, err
		}
	}
	return dir, nil
}
