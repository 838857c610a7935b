package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
)

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// Repository defines persistence for principals. Lookups return (nil, nil) when no row matches.
// Every mutation is a single conditional UPDATE so concurrent callers never interleave partial writes.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetUnconfirmedByEmail returns the principal only if it is unconfirmed. Its code hash may be nil.
	GetUnconfirmedByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// SetConfirmOTPHash replaces the pending confirmation code hash of an unconfirmed principal and
	// resets its failed attempt count. Returns false when no unconfirmed principal has that id.
	SetConfirmOTPHash(ctx context.Context, id, otpHash string, at time.Time) (bool, error)
	// MarkConfirmed sets confirmed_at and clears the code hash, only if the principal is still
	// unconfirmed and its pending hash equals otpHash. Returns false when the guard did not match.
	MarkConfirmed(ctx context.Context, id, otpHash string, at time.Time) (bool, error)
	// RecordConfirmFailure counts a wrong code against the pending hash otpHash and clears the hash
	// once maxAttempts failures have been counted. Returns true when this call cleared it; a guard
	// miss (code already replaced or redeemed) returns false.
	RecordConfirmFailure(ctx context.Context, id, otpHash string, maxAttempts int, at time.Time) (bool, error)
	// AdvanceCredentialChange moves last_credential_change_at forward to at; it never moves it back.
	// Returns false when no principal has that id.
	AdvanceCredentialChange(ctx context.Context, id string, at time.Time) (bool, error)
}
