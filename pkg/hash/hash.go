// Package hash wraps bcrypt for the username/password credentials stored by
// internal/auth and checked during the broker's CONNECT handshake.
package hash

import (
	"github.com/snode/goqtt/pkg/er"
	"golang.org/x/crypto/bcrypt"
)

// HashPasswd bcrypt-hashes passwd at the given cost for storage.
func HashPasswd(passwd string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passwd), cost)
	if err != nil {
		return "", &er.Err{Context: "Hash", Message: er.ErrHashFailed}
	}
	return string(hash), nil
}

// VerifyPasswd reports whether passwd matches the stored bcrypt hash.
func VerifyPasswd(hash, passwd string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passwd)) == nil
}
