package repository

import (
	"context"
	"time"

	"github.com/mohamedFouadgebil/socialMedia/internal/session/domain"
)

// Repository persists revoked sessions.
type Repository interface {
	// Insert records the revocation. Inserting a session id that is already present is a no-op.
	Insert(ctx context.Context, r *domain.RevokedSession) error
	// IsRevoked reports whether sessionID has an entry whose expiry is after now.
	IsRevoked(ctx context.Context, sessionID string, now time.Time) (bool, error)
	// DeleteExpired removes entries whose expiry is at or before now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
