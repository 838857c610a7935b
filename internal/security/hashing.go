package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidInput is returned when a secret to hash is empty.
var ErrInvalidInput = errors.New("invalid input")

// Hasher hashes and verifies secrets (passwords, confirmation codes) using bcrypt.
// Callers must not log or persist plaintext secrets.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is a
// reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a salted bcrypt hash of secret suitable for storage.
// Returns ErrInvalidInput for an empty secret. Secrets longer than 72 bytes are rejected by bcrypt.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrInvalidInput
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether secret matches hashed. It never errors: an empty
// secret, an empty hash or a malformed hash all yield false.
func (h *Hasher) Verify(secret, hashed string) bool {
	if secret == "" || hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)) == nil
}
