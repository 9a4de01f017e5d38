// Package memory provides an in-memory user and client directory for
// development, testing, and the demo binary.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/authplat/oidc-idp/directory"
)

// Directory is an in-memory implementation of both directory contracts.
type Directory struct {
	mu      sync.RWMutex
	users   map[string]*directory.User // keyed by ID
	clients map[string]*directory.Client
}

var (
	_ directory.UserDirectory   = (*Directory)(nil)
	_ directory.ClientDirectory = (*Directory)(nil)
)

// New creates an empty in-memory directory.
func New() *Directory {
	return &Directory{
		users:   make(map[string]*directory.User),
		clients: make(map[string]*directory.Client),
	}
}

// AddUser registers a user. The ID must be unique.
func (d *Directory) AddUser(user *directory.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("invalid user")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[user.ID]; exists {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	cp := *user
	d.users[user.ID] = &cp
	return nil
}

// AddClient registers a client. The client ID must be unique.
func (d *Directory) AddClient(client *directory.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.clients[client.ClientID]; exists {
		return fmt.Errorf("client %s already exists", client.ClientID)
	}
	cp := *client
	d.clients[client.ClientID] = &cp
	return nil
}

// FindByUsername resolves a user by username.
func (d *Directory) FindByUsername(_ context.Context, username string) (*directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, user := range d.users {
		if user.Username == username {
			cp := *user
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: user %q", directory.ErrNotFound, username)
}

// FindByID resolves a user by ID.
func (d *Directory) FindByID(_ context.Context, id string) (*directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user id %q", directory.ErrNotFound, id)
	}
	cp := *user
	return &cp, nil
}

// SetUserDisabled flips a user's disabled flag. Outstanding tokens are
// not touched; token paths re-check the flag on every use.
func (d *Directory) SetUserDisabled(id string, disabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[id]
	if !ok {
		return fmt.Errorf("%w: user id %q", directory.ErrNotFound, id)
	}
	user.Disabled = disabled
	return nil
}

// RemoveUser deletes a user from the directory.
func (d *Directory) RemoveUser(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[id]; !ok {
		return fmt.Errorf("%w: user id %q", directory.ErrNotFound, id)
	}
	delete(d.users, id)
	return nil
}

// FindByClientID resolves a client by its OAuth client identifier.
func (d *Directory) FindByClientID(_ context.Context, clientID string) (*directory.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	client, ok := d.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: client %q", directory.ErrNotFound, clientID)
	}
	cp := *client
	return &cp, nil
}

// FindManyWithLogoutURI returns the subset of the given clients that have
// a registered front-channel logout URI.
func (d *Directory) FindManyWithLogoutURI(_ context.Context, clientIDs []string) ([]*directory.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var clients []*directory.Client
	for _, id := range clientIDs {
		client, ok := d.clients[id]
		if !ok || client.FrontChannelLogoutURI == "" {
			continue
		}
		cp := *client
		clients = append(clients, &cp)
	}
	return clients, nil
}
