package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/gluk-w/cohub/internal/config"
)

// setupTestDB points the package DB at an in-memory SQLite database.
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	DB = db
	t.Cleanup(func() {
		Close()
		DB = nil
	})
}

func TestSettingsRoundTrip(t *testing.T) {
	setupTestDB(t)

	if _, err := GetSetting("fernet_key"); err == nil {
		t.Fatal("expected error for missing setting")
	}
	if err := SetSetting("fernet_key", "abc"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := SetSetting("fernet_key", "def"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	v, err := GetSetting("fernet_key")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "def" {
		t.Errorf("expected def, got %q", v)
	}
	if err := DeleteSetting("fernet_key"); err != nil {
		t.Fatalf("DeleteSetting: %v", err)
	}
	if _, err := GetSetting("fernet_key"); err == nil {
		t.Error("expected error after delete")
	}
}

func TestCredentialLifecycle(t *testing.T) {
	setupTestDB(t)

	if _, err := GetCredential(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}

	if err := SaveCredential(&Credential{UID: "alice", Username: "Alice", TokenEnc: "enc-1"}); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}
	// A second login replaces the row instead of adding one.
	if err := SaveCredential(&Credential{UID: "bob", Username: "Bob", TokenEnc: "enc-2"}); err != nil {
		t.Fatalf("SaveCredential replace: %v", err)
	}

	var count int64
	DB.Model(&Credential{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 credential row, got %d", count)
	}

	c, err := GetCredential()
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if c.UID != "bob" || c.Username != "Bob" || c.TokenEnc != "enc-2" {
		t.Errorf("unexpected credential: %+v", c)
	}

	if err := DeleteCredential(); err != nil {
		t.Fatalf("DeleteCredential: %v", err)
	}
	if _, err := GetCredential(); !errors.Is(err, ErrNoCredential) {
		t.Errorf("expected ErrNoCredential after delete, got %v", err)
	}
}

func TestInitCreatesStateFile(t *testing.T) {
	config.Cfg.StatePath = filepath.Join(t.TempDir(), "nested", "state.db")
	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		Close()
		DB = nil
	})
	if err := SetSetting("k", "v"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
}
