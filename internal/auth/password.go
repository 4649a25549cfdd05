// Package auth hashes and checks the shared secret that guards the HTTP
// trigger.
package auth

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// Hash returns a bcrypt hash of the token.
func Hash(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcryptCost)
	return string(b), err
}

// Verify reports whether token matches the stored bcrypt hash.
func Verify(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// GenerateToken returns a 32-byte cryptographically random hex string.
func GenerateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
