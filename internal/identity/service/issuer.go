package service

import (
	"github.com/google/uuid"

	"github.com/mohamedFouadgebil/socialMedia/internal/security"
	userdomain "github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
)

// Issuer mints token pairs for authenticated principals. It performs no store writes.
type Issuer struct {
	tokens *security.TokenProvider
}

// NewIssuer returns an Issuer signing with tokens.
func NewIssuer(tokens *security.TokenProvider) *Issuer {
	return &Issuer{tokens: tokens}
}

// Issue signs an access and a refresh token for u under a fresh session id.
// The signature level follows the principal's role.
func (i *Issuer) Issue(u *userdomain.User) (*security.TokenPair, error) {
	if u == nil || u.ID == "" {
		return nil, ErrInvalidInput
	}
	level := security.ResolveSignatureLevel(string(u.Role))
	return i.tokens.IssuePair(u.ID, level, uuid.New().String())
}
