// Package storage holds the user record types and secret hashing shared by
// the credential store backends.
package storage

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrUserNotFound is returned when a lookup by username yields no row.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when inserting a duplicate username or email.
var ErrUserExists = errors.New("user already exists")

// NewUser is the data written when an account is registered. Secrets are
// already hashed.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	TwoFAHash    string
	TwoFATime    time.Time
}

// Stats is a user's game record.
type Stats struct {
	Won  int
	Lost int
}

// HashSecret creates a bcrypt hash of a password or verification code.
//
// Precondition: secret must be at most 72 bytes.
// Postcondition: Returns a bcrypt hash string.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckSecret compares a plaintext secret against a bcrypt hash.
func CheckSecret(secret, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
