package directory

import "testing"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("password stored in the clear")
	}
	if !VerifyPassword("hunter2", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("hunter3", hash) {
		t.Error("wrong password accepted")
	}
}

func TestClientVerifySecret(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	c := &Client{ClientID: "c1", SecretHash: hash}

	if !c.VerifySecret("s3cret") {
		t.Error("correct secret rejected")
	}
	if c.VerifySecret("wrong") {
		t.Error("wrong secret accepted")
	}
	if (&Client{}).VerifySecret("anything") {
		t.Error("client without a hash accepted a secret")
	}
}

func TestHasRedirectURI(t *testing.T) {
	c := &Client{RedirectURIs: []string{"https://app.test/cb", "https://app.test/cb2"}}

	if !c.HasRedirectURI("https://app.test/cb") {
		t.Error("registered URI rejected")
	}
	if c.HasRedirectURI("https://app.test/cb/extra") {
		t.Error("matching is not exact")
	}
	if c.HasRedirectURI("") {
		t.Error("empty URI accepted")
	}
}
