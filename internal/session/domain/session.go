package domain

import "time"

// RevokedSession marks a session id as revoked until ExpiresAt. Both tokens of the pair
// that carries the session id are rejected while the entry is active.
type RevokedSession struct {
	SessionID   string
	PrincipalID string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// ActiveAt reports whether the revocation still applies at now. An entry whose expiry
// has passed no longer revokes anything, whether or not it has been purged.
func (r *RevokedSession) ActiveAt(now time.Time) bool {
	return r.ExpiresAt.After(now)
}
