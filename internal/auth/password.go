package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives the bcrypt hash stored on a directory user. The token
// endpoint verifies submitted credentials against these hashes.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks a login attempt against the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("missing password hash")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
