package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher is the narrow surface callers depend on.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

var _ Hasher = Config{}

// Hash returns a salted bcrypt hash of plaintext.
// Two calls with the same input produce different strings.
// Policy is not applied here; callers run Validate first.
func (c Config) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > maxBcryptBytes {
		return "", ErrPasswordTooLong
	}

	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), c.cost())
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(h), nil
}

// Verify reports whether plaintext matches hash.
// A malformed hash is a mismatch, never an error.
func (c Config) Verify(plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	return err == nil
}

// NeedsRehash reports whether hash was produced with a different cost than c.
func (c Config) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != c.cost()
}
