package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/authplat/oidc-idp/directory"
)

func TestUserLookup(t *testing.T) {
	d := New()
	ctx := context.Background()

	if err := d.AddUser(&directory.User{ID: "u1", Username: "alice"}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	user, err := d.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("ID = %q, want u1", user.ID)
	}

	user, err = d.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want alice", user.Username)
	}

	if _, err := d.FindByUsername(ctx, "bob"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if _, err := d.FindByID(ctx, "u2"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestAddUserRejectsDuplicates(t *testing.T) {
	d := New()
	if err := d.AddUser(&directory.User{ID: "u1"}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := d.AddUser(&directory.User{ID: "u1"}); err == nil {
		t.Error("expected error for duplicate user ID")
	}
	if err := d.AddUser(&directory.User{}); err == nil {
		t.Error("expected error for empty user ID")
	}
}

func TestClientLookup(t *testing.T) {
	d := New()
	ctx := context.Background()

	if err := d.AddClient(&directory.Client{ClientID: "c1", Name: "First"}); err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	client, err := d.FindByClientID(ctx, "c1")
	if err != nil {
		t.Fatalf("FindByClientID: %v", err)
	}
	if client.Name != "First" {
		t.Errorf("Name = %q, want First", client.Name)
	}

	if _, err := d.FindByClientID(ctx, "c2"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestFindManyWithLogoutURI(t *testing.T) {
	d := New()
	ctx := context.Background()

	clients := []*directory.Client{
		{ClientID: "c1", FrontChannelLogoutURI: "https://one.test/logout"},
		{ClientID: "c2"},
		{ClientID: "c3", FrontChannelLogoutURI: "https://three.test/logout"},
	}
	for _, c := range clients {
		if err := d.AddClient(c); err != nil {
			t.Fatalf("AddClient(%s): %v", c.ClientID, err)
		}
	}

	// Unknown IDs and clients without a logout URI drop out silently.
	got, err := d.FindManyWithLogoutURI(ctx, []string{"c1", "c2", "c3", "ghost"})
	if err != nil {
		t.Fatalf("FindManyWithLogoutURI: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d clients, want 2", len(got))
	}
	if got[0].ClientID != "c1" || got[1].ClientID != "c3" {
		t.Errorf("got %s, %s; want c1, c3", got[0].ClientID, got[1].ClientID)
	}
}

func TestLookupsReturnCopies(t *testing.T) {
	d := New()
	ctx := context.Background()
	if err := d.AddUser(&directory.User{ID: "u1", Username: "alice"}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	first, _ := d.FindByID(ctx, "u1")
	first.Username = "mutated"

	second, _ := d.FindByID(ctx, "u1")
	if second.Username != "alice" {
		t.Error("lookup returned a shared pointer instead of a copy")
	}
}

func TestSetUserDisabled(t *testing.T) {
	d := New()
	ctx := context.Background()
	if err := d.AddUser(&directory.User{ID: "u1", Username: "alice"}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	if err := d.SetUserDisabled("u1", true); err != nil {
		t.Fatalf("SetUserDisabled: %v", err)
	}
	user, err := d.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !user.Disabled {
		t.Error("user not disabled after SetUserDisabled")
	}

	if err := d.SetUserDisabled("ghost", true); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("unknown user: got %v, want ErrNotFound", err)
	}
}

func TestRemoveUser(t *testing.T) {
	d := New()
	ctx := context.Background()
	if err := d.AddUser(&directory.User{ID: "u1", Username: "alice"}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	if err := d.RemoveUser("u1"); err != nil {
		t.Fatalf("RemoveUser: %v", err)
	}
	if _, err := d.FindByID(ctx, "u1"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("after removal: got %v, want ErrNotFound", err)
	}
	if err := d.RemoveUser("u1"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("second removal: got %v, want ErrNotFound", err)
	}
}
