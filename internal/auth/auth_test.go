package auth

import (
	"testing"

	"github.com/gluk-w/cohub/internal/database"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	database.DB = db
	t.Cleanup(func() {
		database.Close()
		database.DB = nil
	})
}

func TestStoreSetAndToken(t *testing.T) {
	s := NewStore(nil)
	if _, ok := s.Token(); ok {
		t.Fatal("expected no token on a new store")
	}
	if err := s.Set(Credential{Token: "tok", UID: "alice", Username: "Alice"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tok, ok := s.Token()
	if !ok || tok != "tok" {
		t.Errorf("Token() = %q, %v", tok, ok)
	}
	c, ok := s.Credential()
	if !ok || c.Username != "Alice" {
		t.Errorf("Credential() = %+v, %v", c, ok)
	}
}

func TestStoreRevokeNotifies(t *testing.T) {
	s := NewStore(nil)
	s.Set(Credential{Token: "tok", UID: "alice", Username: "Alice"})

	var reasons []RevokeReason
	s.OnRevoke(func(r RevokeReason) { reasons = append(reasons, r) })

	s.Revoke()
	if _, ok := s.Token(); ok {
		t.Error("expected token cleared after Revoke")
	}
	if _, ok := s.Credential(); ok {
		t.Error("expected uid/username cleared with the token")
	}

	// A second rejection still notifies.
	s.Revoke()
	if len(reasons) != 2 || reasons[0] != RevokedByServer {
		t.Errorf("unexpected reasons: %v", reasons)
	}
}

func TestStoreLogout(t *testing.T) {
	s := NewStore(nil)
	s.Set(Credential{Token: "tok", UID: "alice", Username: "Alice"})

	var got RevokeReason
	s.OnRevoke(func(r RevokeReason) { got = r })

	if err := s.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if got != RevokedByLogout {
		t.Errorf("expected logout reason, got %q", got)
	}
}

func TestStoreReject(t *testing.T) {
	s := NewStore(nil)
	s.Set(Credential{Token: "tok", UID: "alice", Username: "Alice"})

	var reasons []RevokeReason
	s.OnRevoke(func(r RevokeReason) { reasons = append(reasons, r) })
	s.OnRevoke(func(r RevokeReason) { reasons = append(reasons, r) })

	s.Reject()
	if _, ok := s.Token(); ok {
		t.Error("expected token cleared after Reject")
	}
	if len(reasons) != 2 || reasons[0] != RevokedByLogin || reasons[1] != RevokedByLogin {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestDBPersisterRoundTrip(t *testing.T) {
	setupTestDB(t)

	s := NewStore(DBPersister{})
	if err := s.Set(Credential{Token: "secret-token", UID: "alice", Username: "Alice", Server: "http://hub"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	row, err := database.GetCredential()
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if row.TokenEnc == "" || row.TokenEnc == "secret-token" {
		t.Errorf("token not encrypted at rest: %q", row.TokenEnc)
	}

	restored := NewStore(DBPersister{})
	if err := restored.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	c, ok := restored.Credential()
	if !ok {
		t.Fatal("expected restored credential")
	}
	if c.Token != "secret-token" || c.UID != "alice" || c.Username != "Alice" || c.Server != "http://hub" {
		t.Errorf("unexpected restored credential: %+v", c)
	}

	restored.Revoke()
	if _, err := database.GetCredential(); err != database.ErrNoCredential {
		t.Errorf("expected persisted credential cleared, got %v", err)
	}

	empty := NewStore(DBPersister{})
	if err := empty.Restore(); err != nil {
		t.Fatalf("Restore empty: %v", err)
	}
	if _, ok := empty.Token(); ok {
		t.Error("expected no token after revoke")
	}
}
