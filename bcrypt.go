package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptAuthenticator implements PasswordAuthenticator with bcrypt.
// A zero Cost uses the build default.
type BcryptAuthenticator struct {
	Cost int
}

// HashPassword will generate a password hash
func (b BcryptAuthenticator) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := b.Cost
	if cost == 0 {
		cost = passwordHashCost()
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (b BcryptAuthenticator) ComparePasswordAndHash(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}

	var (
		prefixErr  bcrypt.InvalidHashPrefixError
		versionErr bcrypt.HashVersionTooNewError
		costErr    bcrypt.InvalidCostError
	)
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	case errors.Is(err, bcrypt.ErrHashTooShort),
		errors.As(err, &prefixErr),
		errors.As(err, &versionErr),
		errors.As(err, &costErr):
		// unreadable stored hash, nothing can match it
		return wrapAuthError(ErrPasswordMismatch, err)
	default:
		return err
	}
}

// HashPassword hashes with the default authenticator
func HashPassword(password string) (string, error) {
	return BcryptAuthenticator{}.HashPassword(password)
}

// ComparePasswordAndHash compares with the default authenticator
func ComparePasswordAndHash(password, hash string) error {
	return BcryptAuthenticator{}.ComparePasswordAndHash(password, hash)
}
