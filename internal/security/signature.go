package security

import (
	"errors"
	"fmt"
)

// Level is the signature level of a token. It selects which secret pair signs
// the token and is carried as the prefix of the Authorization header.
type Level string

const (
	LevelUser  Level = "USER"
	LevelAdmin Level = "ADMIN"
)

var (
	// ErrUnknownSignatureLevel is returned for a level with no configured secret pair.
	ErrUnknownSignatureLevel = errors.New("unknown signature level")
	// ErrConfiguration is returned when a required signing secret is not set.
	ErrConfiguration = errors.New("configuration error")
)

// Role names understood by ResolveSignatureLevel. They mirror the principal roles
// stored with each account.
const (
	roleRegular  = "REGULAR"
	roleElevated = "ELEVATED"
)

// ResolveSignatureLevel maps a principal role to its signature level.
// ELEVATED signs at ADMIN; REGULAR and any unrecognized role sign at USER.
func ResolveSignatureLevel(role string) Level {
	switch role {
	case roleElevated:
		return LevelAdmin
	case roleRegular:
		return LevelUser
	default:
		return LevelUser
	}
}

// ParseLevel parses the Authorization header prefix. Matching is exact.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelUser, LevelAdmin:
		return Level(s), true
	}
	return "", false
}

// Secrets is the symmetric key pair for one signature level.
type Secrets struct {
	Access  []byte
	Refresh []byte
}

// For returns the secret used for tokens of the given kind.
func (s Secrets) For(kind Kind) []byte {
	if kind == KindRefresh {
		return s.Refresh
	}
	return s.Access
}

// SignatureAuthority holds the process-wide secret pairs, one per level.
// It is immutable after construction.
type SignatureAuthority struct {
	secrets map[Level]Secrets
}

// NewSignatureAuthority validates that every level has both secrets set.
// A missing secret is a startup-fatal ErrConfiguration naming the level and kind.
func NewSignatureAuthority(pairs map[Level]Secrets) (*SignatureAuthority, error) {
	secrets := make(map[Level]Secrets, 2)
	for _, lvl := range []Level{LevelUser, LevelAdmin} {
		p, ok := pairs[lvl]
		if !ok || len(p.Access) == 0 {
			return nil, fmt.Errorf("%w: access secret for %s is not set", ErrConfiguration, lvl)
		}
		if len(p.Refresh) == 0 {
			return nil, fmt.Errorf("%w: refresh secret for %s is not set", ErrConfiguration, lvl)
		}
		secrets[lvl] = Secrets{
			Access:  append([]byte(nil), p.Access...),
			Refresh: append([]byte(nil), p.Refresh...),
		}
	}
	return &SignatureAuthority{secrets: secrets}, nil
}

// SecretsFor returns the secret pair for level, or ErrUnknownSignatureLevel.
func (a *SignatureAuthority) SecretsFor(level Level) (Secrets, error) {
	s, ok := a.secrets[level]
	if !ok {
		return Secrets{}, ErrUnknownSignatureLevel
	}
	return s, nil
}
