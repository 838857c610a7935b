package service

import (
	"context"
	"strings"
	"time"

	"github.com/mohamedFouadgebil/socialMedia/internal/security"
	userdomain "github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
)

// PrincipalReader loads principals by id. Returns (nil, nil) when none matches.
type PrincipalReader interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// RevocationChecker reports whether a session has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Result is a verified credential.
type Result struct {
	Principal *userdomain.User
	Claims    *security.Claims
	Level     security.Level
	Kind      security.Kind
}

// Verifier checks bearer credentials of the form "<LEVEL> <token>".
type Verifier struct {
	tokens      *security.TokenProvider
	users       PrincipalReader
	revocations RevocationChecker
	timeout     time.Duration
}

// NewVerifier returns a Verifier. Store lookups are bounded by timeout.
func NewVerifier(tokens *security.TokenProvider, users PrincipalReader, revocations RevocationChecker, timeout time.Duration) *Verifier {
	return &Verifier{tokens: tokens, users: users, revocations: revocations, timeout: timeout}
}

// Verify validates header as a token of the given kind. Checks run in a fixed order and the first
// failure is returned: header shape, level, signature and expiry, claim completeness,
// session revocation, principal existence, then global invalidation.
func (v *Verifier) Verify(ctx context.Context, header string, kind security.Kind) (*Result, error) {
	prefix, raw, ok := strings.Cut(header, " ")
	if !ok || prefix == "" || raw == "" || strings.Contains(raw, " ") {
		return nil, ErrMalformedHeader
	}
	level, ok := security.ParseLevel(prefix)
	if !ok {
		return nil, ErrUnknownSignatureLevel
	}
	claims, err := v.tokens.Parse(raw, level, kind)
	if err != nil {
		return nil, err
	}
	if !claims.Complete() {
		return nil, ErrMalformedClaims
	}

	revoked, err := v.revocations.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrSessionRevoked
	}

	principal, err := callStore(ctx, v.timeout, "load principal", func(ctx context.Context) (*userdomain.User, error) {
		return v.users.GetByID(ctx, claims.PrincipalID())
	})
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, ErrPrincipalNotFound
	}
	if invalidatedAfter(principal.LastCredentialChangeAt, claims.IssuedAtTime()) {
		return nil, ErrGloballyInvalidated
	}
	return &Result{Principal: principal, Claims: claims, Level: level, Kind: kind}, nil
}

// invalidatedAfter reports whether the credential change happened strictly after iat.
// Both sides are compared at full precision; a change at the exact issue instant keeps the token.
func invalidatedAfter(changedAt *time.Time, iat time.Time) bool {
	if changedAt == nil {
		return false
	}
	return changedAt.After(iat)
}
