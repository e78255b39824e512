package auth

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return store
}

func TestAuthenticateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetUser("alice", "s3cr3t", 4); err != nil {
		t.Fatalf("SetUser: %v", err)
	}

	if err := store.Authenticate("alice", "s3cr3t"); err != nil {
		t.Fatalf("expected authentication to succeed, got %v", err)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	store := newTestStore(t)
	store.SetUser("alice", "s3cr3t", 4)

	if err := store.Authenticate("alice", "wrong"); err == nil {
		t.Fatal("expected authentication to fail for a wrong password")
	}
}

func TestAuthenticateRejectsUnknownUser(t *testing.T) {
	store := newTestStore(t)
	if err := store.Authenticate("ghost", "whatever"); err == nil {
		t.Fatal("expected authentication to fail for an unknown user")
	}
}

func TestSetUserUpsertsExistingUser(t *testing.T) {
	store := newTestStore(t)
	store.SetUser("alice", "first", 4)
	store.SetUser("alice", "second", 4)

	if err := store.Authenticate("alice", "first"); err == nil {
		t.Fatal("expected the old password to no longer authenticate")
	}
	if err := store.Authenticate("alice", "second"); err != nil {
		t.Fatalf("expected the updated password to authenticate, got %v", err)
	}
}
