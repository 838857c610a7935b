package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohamedFouadgebil/socialMedia/internal/mailer"
	"github.com/mohamedFouadgebil/socialMedia/internal/security"
	userdomain "github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
)

// DefaultConfirmMaxAttempts is how many wrong codes are accepted before the pending code is discarded.
const DefaultConfirmMaxAttempts = 5

// ConfirmationRepo is the subset of the user repository the confirmation flow needs.
type ConfirmationRepo interface {
	GetUnconfirmedByEmail(ctx context.Context, email string) (*userdomain.User, error)
	SetConfirmOTPHash(ctx context.Context, id, otpHash string, at time.Time) (bool, error)
	MarkConfirmed(ctx context.Context, id, otpHash string, at time.Time) (bool, error)
	RecordConfirmFailure(ctx context.Context, id, otpHash string, maxAttempts int, at time.Time) (bool, error)
}

// ConfirmationFlow issues and redeems account confirmation codes. Only code hashes are stored;
// the plaintext leaves the process through the mail queue.
type ConfirmationFlow struct {
	users       ConfirmationRepo
	hasher      *security.Hasher
	queue       mailer.Queue
	otpLength   int
	maxAttempts int
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewConfirmationFlow returns a ConfirmationFlow. otpLength <= 0 uses security.DefaultOTPLength.
func NewConfirmationFlow(users ConfirmationRepo, hasher *security.Hasher, queue mailer.Queue, otpLength int, timeout time.Duration, logger *zap.Logger) *ConfirmationFlow {
	if otpLength <= 0 {
		otpLength = security.DefaultOTPLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationFlow{
		users:       users,
		hasher:      hasher,
		queue:       queue,
		otpLength:   otpLength,
		maxAttempts: DefaultConfirmMaxAttempts,
		timeout:     timeout,
		logger:      logger,
		now:         time.Now,
	}
}

// WithMaxAttempts returns a copy of f that discards a pending code after n wrong guesses.
// n <= 0 keeps DefaultConfirmMaxAttempts.
func (f *ConfirmationFlow) WithMaxAttempts(n int) *ConfirmationFlow {
	cp := *f
	if n > 0 {
		cp.maxAttempts = n
	}
	return &cp
}

// IssueCode generates a fresh code for u and sets its hash on u without storing anything.
// The caller persists u and then hands the plaintext to SendCode.
func (f *ConfirmationFlow) IssueCode(u *userdomain.User) (string, error) {
	if u == nil {
		return "", ErrInvalidInput
	}
	code, err := security.GenerateNumericOTP(f.otpLength)
	if err != nil {
		return "", err
	}
	hash, err := f.hasher.Hash(code)
	if err != nil {
		return "", err
	}
	u.ConfirmEmailOTPHash = &hash
	return code, nil
}

// SendCode enqueues the confirmation email carrying code. A failed enqueue is logged:
// the hash is already stored and the user can ask for a new code.
func (f *ConfirmationFlow) SendCode(ctx context.Context, u *userdomain.User, code string) {
	if f.queue == nil {
		return
	}
	task := mailer.NewConfirmEmailTask(u.Email, u.Username(), code)
	if err := f.queue.Enqueue(ctx, task); err != nil {
		f.logger.Warn("confirmation email not queued",
			zap.String("user_id", u.ID), zap.String("task_id", task.ID), zap.Error(err))
	}
}

// RequestConfirmation generates a fresh code for u, stores its hash in place of any earlier one
// and enqueues the confirmation email. The plaintext code is returned for the caller's tests and
// dev tooling; it must not be sent anywhere but the mail queue.
// A failed enqueue is logged and not returned: the hash is already stored and the user can resend.
func (f *ConfirmationFlow) RequestConfirmation(ctx context.Context, u *userdomain.User) (string, error) {
	if u == nil || u.ID == "" {
		return "", ErrInvalidInput
	}
	if u.IsConfirmed() {
		return "", ErrPrincipalNotFound
	}
	pending := *u
	code, err := f.IssueCode(&pending)
	if err != nil {
		return "", err
	}
	hash := *pending.ConfirmEmailOTPHash
	updated, err := callStore(ctx, f.timeout, "store confirmation code", func(ctx context.Context) (bool, error) {
		return f.users.SetConfirmOTPHash(ctx, u.ID, hash, f.now().UTC())
	})
	if err != nil {
		return "", err
	}
	if !updated {
		return "", ErrPrincipalNotFound
	}
	u.ConfirmEmailOTPHash = &hash
	f.SendCode(ctx, u, code)
	return code, nil
}

// Resend issues a new code for the unconfirmed account registered under email, whether or not
// a code is still pending.
// Returns ErrPrincipalNotFound when there is no such account; callers should not reveal that.
func (f *ConfirmationFlow) Resend(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}
	u, err := callStore(ctx, f.timeout, "load unconfirmed principal", func(ctx context.Context) (*userdomain.User, error) {
		return f.users.GetUnconfirmedByEmail(ctx, email)
	})
	if err != nil {
		return err
	}
	if u == nil {
		return ErrPrincipalNotFound
	}
	_, err = f.RequestConfirmation(ctx, u)
	return err
}

// Confirm redeems code for the account registered under email. It succeeds at most once per code:
// the update is guarded on the account still being unconfirmed and the stored hash being the one
// the code was checked against, so a concurrent confirm or re-request loses with ErrInvalidOTP.
// Each wrong code is counted against the pending hash; after maxAttempts misses the hash is
// cleared and only a resend can issue a new one.
func (f *ConfirmationFlow) Confirm(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return ErrInvalidInput
	}
	u, err := callStore(ctx, f.timeout, "load unconfirmed principal", func(ctx context.Context) (*userdomain.User, error) {
		return f.users.GetUnconfirmedByEmail(ctx, email)
	})
	if err != nil {
		return err
	}
	if u == nil || u.ConfirmEmailOTPHash == nil {
		return ErrPrincipalNotFound
	}
	hash := *u.ConfirmEmailOTPHash
	if !f.hasher.Verify(code, hash) {
		cleared, err := callStore(ctx, f.timeout, "record confirmation failure", func(ctx context.Context) (bool, error) {
			return f.users.RecordConfirmFailure(ctx, u.ID, hash, f.maxAttempts, f.now().UTC())
		})
		if err != nil {
			return err
		}
		if cleared {
			f.logger.Info("confirmation code discarded after too many attempts", zap.String("user_id", u.ID))
		}
		return ErrInvalidOTP
	}
	ok, err := callStore(ctx, f.timeout, "mark confirmed", func(ctx context.Context) (bool, error) {
		return f.users.MarkConfirmed(ctx, u.ID, hash, f.now().UTC())
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOTP
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
