// Package directory defines the contracts for the externally owned user
// and client directories. The credential core only reads these records;
// registration and management live elsewhere.
package directory

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound indicates the requested user or client does not exist.
var ErrNotFound = errors.New("not found")

// bcryptCost matches the cost used when records were provisioned.
const bcryptCost = 10

// User is a directory user. The core needs only the fields that feed
// claim construction.
type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt
	Email        string
	Roles        []string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Client is a registered OAuth client.
type Client struct {
	ClientID              string
	SecretHash            string // bcrypt
	Name                  string
	RedirectURIs          []string
	Scopes                []string
	FrontChannelLogoutURI string
	Disabled              bool
	CreatedAt             time.Time
}

// VerifySecret checks a plaintext client secret against the stored hash.
// bcrypt's comparison is constant-time on the hash.
func (c *Client) VerifySecret(secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// HasRedirectURI reports whether uri is one of the client's registered
// redirect URIs (exact match).
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// HashSecret hashes a client secret for storage.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// HashPassword hashes a user password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks a plaintext password against the stored hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserDirectory resolves users for authentication and claim construction.
type UserDirectory interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}

// ClientDirectory resolves registered OAuth clients.
type ClientDirectory interface {
	FindByClientID(ctx context.Context, clientID string) (*Client, error)

	// FindManyWithLogoutURI returns, of the given client IDs, those
	// clients that have a registered front-channel logout URI. Unknown
	// IDs and clients without one are silently omitted.
	FindManyWithLogoutURI(ctx context.Context, clientIDs []string) ([]*Client, error)
}
