package service

import (
	"context"
	"time"

	"github.com/mohamedFouadgebil/socialMedia/internal/security"
)

// LogoutMode selects how much a logout invalidates.
type LogoutMode string

const (
	// LogoutOnly revokes the presented session: both tokens of its pair.
	LogoutOnly LogoutMode = "ONLY"
	// LogoutAll invalidates every token of the principal issued before now.
	LogoutAll LogoutMode = "ALL"
)

// ParseLogoutMode parses the logout flag. Matching is exact.
func ParseLogoutMode(s string) (LogoutMode, error) {
	switch LogoutMode(s) {
	case LogoutOnly, LogoutAll:
		return LogoutMode(s), nil
	}
	return "", ErrInvalidInput
}

// SessionRevoker records a revoked session.
type SessionRevoker interface {
	Revoke(ctx context.Context, sessionID, principalID string, expiresAt time.Time) error
}

// CredentialEpochWriter moves a principal's last credential change forward.
type CredentialEpochWriter interface {
	AdvanceCredentialChange(ctx context.Context, id string, at time.Time) (bool, error)
}

// InvalidationPolicy implements logout. Each call performs exactly one write.
type InvalidationPolicy struct {
	revoker    SessionRevoker
	users      CredentialEpochWriter
	refreshTTL time.Duration
	timeout    time.Duration
	now        func() time.Time
}

// NewInvalidationPolicy returns a policy. refreshTTL sets how long an ONLY revocation is kept.
func NewInvalidationPolicy(revoker SessionRevoker, users CredentialEpochWriter, refreshTTL, timeout time.Duration) *InvalidationPolicy {
	return &InvalidationPolicy{revoker: revoker, users: users, refreshTTL: refreshTTL, timeout: timeout, now: time.Now}
}

// Invalidate applies mode to the session described by claims.
func (p *InvalidationPolicy) Invalidate(ctx context.Context, mode LogoutMode, claims *security.Claims) error {
	if claims == nil || !claims.Complete() {
		return ErrMalformedClaims
	}
	switch mode {
	case LogoutOnly:
		// The refresh token of the pair lives until iat + refreshTTL; keep the entry that long.
		expiresAt := claims.IssuedAtTime().Add(p.refreshTTL)
		return p.revoker.Revoke(ctx, claims.SessionID, claims.PrincipalID(), expiresAt)
	case LogoutAll:
		now := p.now().UTC()
		found, err := callStore(ctx, p.timeout, "advance credential change", func(ctx context.Context) (bool, error) {
			return p.users.AdvanceCredentialChange(ctx, claims.PrincipalID(), now)
		})
		if err != nil {
			return err
		}
		if !found {
			return ErrPrincipalNotFound
		}
		return nil
	}
	return ErrInvalidInput
}
