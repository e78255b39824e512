// Package auth backs the broker's CONNECT username/password check of
// inbound clients with a sqlite3 users table.
package auth

import (
	"database/sql"
	"errors"

	"github.com/snode/goqtt/pkg/er"
	h "github.com/snode/goqtt/pkg/hash"
)

// Store is a bcrypt-backed username/password table.
type Store struct {
	db *sql.DB
}

// New wraps an already-open sqlite3 handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the users table if it does not already exist.
func (s *Store) EnsureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		secret   TEXT NOT NULL
	)`)
	return err
}

// Authenticate checks username/password against the stored bcrypt hash.
func (s *Store) Authenticate(username, password string) error {
	var hash string

	err := s.db.QueryRow("SELECT secret FROM users WHERE username = ?", username).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &er.Err{Context: "Auth", Message: er.ErrUserNotFound}
		}
		return &er.Err{Context: "Auth", Message: err}
	}

	if !h.VerifyPasswd(hash, password) {
		return &er.Err{Context: "Auth", Message: er.ErrInvalidPassword}
	}

	return nil
}

// SetUser inserts or updates a user's credentials, hashing password at the
// given bcrypt cost. Used by provisioning tooling, not the hot path.
func (s *Store) SetUser(username, password string, cost int) error {
	hash, err := h.HashPasswd(password, cost)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO users (username, secret) VALUES (?, ?)
		 ON CONFLICT(username) DO UPDATE SET secret = excluded.secret`,
		username, hash,
	)
	return err
}
