package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
)

const uniqueViolation = "23505"

const userColumns = `id, email, first_name, last_name, slug, password_hash, role,
	confirmed_at, confirm_email_otp_hash, last_credential_change_at, created_at, updated_at`

type userRow struct {
	ID                     string         `db:"id"`
	Email                  string         `db:"email"`
	FirstName              string         `db:"first_name"`
	LastName               string         `db:"last_name"`
	Slug                   string         `db:"slug"`
	PasswordHash           string         `db:"password_hash"`
	Role                   string         `db:"role"`
	ConfirmedAt            sql.NullTime   `db:"confirmed_at"`
	ConfirmEmailOTPHash    sql.NullString `db:"confirm_email_otp_hash"`
	LastCredentialChangeAt sql.NullTime   `db:"last_credential_change_at"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a user repository backed by the users table.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetUnconfirmedByEmail returns the user with the given email if it is unconfirmed, or nil.
func (r *PostgresRepository) GetUnconfirmedByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users
		WHERE email = $1 AND confirmed_at IS NULL`, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rowToDomain(&row), nil
}

// Create inserts u. Returns ErrDuplicateEmail when the email is taken.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.Slug, u.PasswordHash, string(u.Role),
		timeToNullTime(u.ConfirmedAt), stringToNullString(u.ConfirmEmailOTPHash), timeToNullTime(u.LastCredentialChangeAt),
		u.CreatedAt, u.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}

// SetConfirmOTPHash replaces the pending confirmation code hash of an unconfirmed user.
func (r *PostgresRepository) SetConfirmOTPHash(ctx context.Context, id, otpHash string, at time.Time) (bool, error) {
	return r.execOne(ctx, `UPDATE users SET confirm_email_otp_hash = $2, confirm_email_failed_attempts = 0, updated_at = $3
		WHERE id = $1 AND confirmed_at IS NULL`, id, otpHash, at)
}

// RecordConfirmFailure increments the failed attempt count and clears the hash at maxAttempts.
func (r *PostgresRepository) RecordConfirmFailure(ctx context.Context, id, otpHash string, maxAttempts int, at time.Time) (bool, error) {
	var cleared bool
	err := r.db.GetContext(ctx, &cleared, `UPDATE users SET
			confirm_email_failed_attempts = confirm_email_failed_attempts + 1,
			confirm_email_otp_hash = CASE WHEN confirm_email_failed_attempts + 1 >= $3 THEN NULL ELSE confirm_email_otp_hash END,
			updated_at = $4
		WHERE id = $1 AND confirmed_at IS NULL AND confirm_email_otp_hash = $2
		RETURNING confirm_email_otp_hash IS NULL`, id, otpHash, maxAttempts, at)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return cleared, err
}

// MarkConfirmed confirms the user and clears the code hash if the pending hash is still otpHash.
func (r *PostgresRepository) MarkConfirmed(ctx context.Context, id, otpHash string, at time.Time) (bool, error) {
	return r.execOne(ctx, `UPDATE users SET confirmed_at = $3, confirm_email_otp_hash = NULL, updated_at = $3
		WHERE id = $1 AND confirmed_at IS NULL AND confirm_email_otp_hash = $2`, id, otpHash, at)
}

// AdvanceCredentialChange sets last_credential_change_at to the later of its current value and at.
func (r *PostgresRepository) AdvanceCredentialChange(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.execOne(ctx, `UPDATE users SET last_credential_change_at = GREATEST(last_credential_change_at, $2), updated_at = $2
		WHERE id = $1`, id, at)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func stringToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func rowToDomain(row *userRow) *domain.User {
	u := &domain.User{
		ID:                     row.ID,
		Email:                  row.Email,
		FirstName:              row.FirstName,
		LastName:               row.LastName,
		Slug:                   row.Slug,
		PasswordHash:           row.PasswordHash,
		Role:                   domain.Role(row.Role),
		ConfirmedAt:            nullTimeToPtr(row.ConfirmedAt),
		LastCredentialChangeAt: nullTimeToPtr(row.LastCredentialChangeAt),
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}
	if row.ConfirmEmailOTPHash.Valid {
		h := row.ConfirmEmailOTPHash.String
		u.ConfirmEmailOTPHash = &h
	}
	return u
}
