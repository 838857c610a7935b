package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mohamedFouadgebil/socialMedia/internal/session/domain"
)

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a revocation repository backed by the revoked_sessions table.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert records the revocation; a duplicate session id is ignored.
func (r *PostgresRepository) Insert(ctx context.Context, rs *domain.RevokedSession) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO revoked_sessions (session_id, principal_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4) ON CONFLICT (session_id) DO NOTHING`,
		rs.SessionID, rs.PrincipalID, rs.ExpiresAt, rs.CreatedAt)
	return err
}

// IsRevoked reports whether an unexpired entry exists for sessionID.
func (r *PostgresRepository) IsRevoked(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	var revoked bool
	err := r.db.GetContext(ctx, &revoked,
		`SELECT EXISTS (SELECT 1 FROM revoked_sessions WHERE session_id = $1 AND expires_at > $2)`,
		sessionID, now)
	return revoked, err
}

// DeleteExpired removes entries whose expiry is at or before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM revoked_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
