// Package auth holds the credential subsystem. The core never sees raw
// passwords past this boundary; accounts store only the bcrypt hash.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var ErrPasswordTooShort = errors.New("password too short")

// HashPassword derives the stored credential material from a raw password.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the presented password matches the stored hash.
func CheckPassword(hash, presented string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil
}
