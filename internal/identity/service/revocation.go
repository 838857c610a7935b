package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	sessiondomain "github.com/mohamedFouadgebil/socialMedia/internal/session/domain"
	sessionrepo "github.com/mohamedFouadgebil/socialMedia/internal/session/repository"
)

// RevocationStore records sessions revoked before their natural expiry.
// An entry past its expiry is treated as absent whether or not it has been purged.
type RevocationStore struct {
	repo    sessionrepo.Repository
	timeout time.Duration
	now     func() time.Time
}

// NewRevocationStore returns a store over repo whose calls are bounded by timeout.
func NewRevocationStore(repo sessionrepo.Repository, timeout time.Duration) *RevocationStore {
	return &RevocationStore{repo: repo, timeout: timeout, now: time.Now}
}

// Revoke marks sessionID revoked until expiresAt. Revoking an already revoked session is a no-op.
func (s *RevocationStore) Revoke(ctx context.Context, sessionID, principalID string, expiresAt time.Time) error {
	if sessionID == "" || principalID == "" {
		return ErrInvalidInput
	}
	entry := &sessiondomain.RevokedSession{
		SessionID:   sessionID,
		PrincipalID: principalID,
		ExpiresAt:   expiresAt.UTC(),
		CreatedAt:   s.now().UTC(),
	}
	_, err := callStore(ctx, s.timeout, "revoke session", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Insert(ctx, entry)
	})
	return err
}

// IsRevoked reports whether sessionID has an unexpired revocation entry.
func (s *RevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	now := s.now().UTC()
	return callStore(ctx, s.timeout, "lookup revocation", func(ctx context.Context) (bool, error) {
		return s.repo.IsRevoked(ctx, sessionID, now)
	})
}

// PurgeExpired deletes entries whose expiry has passed and returns how many were removed.
func (s *RevocationStore) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	return callStore(ctx, s.timeout, "purge revocations", func(ctx context.Context) (int64, error) {
		return s.repo.DeleteExpired(ctx, now)
	})
}

// RunJanitor purges expired entries every interval until ctx is cancelled.
func (s *RevocationStore) RunJanitor(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("revocation purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("revocation purge", zap.Int64("removed", n))
			}
		}
	}
}
