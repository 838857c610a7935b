package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohamedFouadgebil/socialMedia/internal/security"
	"github.com/mohamedFouadgebil/socialMedia/internal/telemetry"
	userdomain "github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
	userrepo "github.com/mohamedFouadgebil/socialMedia/internal/user/repository"
)

// Password length bounds; bcrypt ignores input past 72 bytes.
const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// SignupInput is the registration request.
type SignupInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Confirmer issues confirmation codes for new accounts. IssueCode sets the code hash on the
// principal before it is stored so the account and its first code are written together.
type Confirmer interface {
	IssueCode(u *userdomain.User) (string, error)
	SendCode(ctx context.Context, u *userdomain.User, code string)
}

// AccountService implements signup, login and profile lookup.
type AccountService struct {
	users     userrepo.Repository
	hasher    *security.Hasher
	issuer    *Issuer
	confirmer Confirmer
	events    telemetry.EventEmitter
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccountService returns an AccountService. events may be nil.
func NewAccountService(users userrepo.Repository, hasher *security.Hasher, issuer *Issuer, confirmer Confirmer, events telemetry.EventEmitter, timeout time.Duration, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		users:     users,
		hasher:    hasher,
		issuer:    issuer,
		confirmer: confirmer,
		events:    events,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Signup registers an unconfirmed REGULAR principal and sends it a confirmation code.
// Validation failures wrap ErrInvalidInput; an existing email yields ErrEmailAlreadyRegistered.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*userdomain.User, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     email,
		Role:      userdomain.RoleRegular,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.SetUsername(in.Username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	existing, err := callStore(ctx, s.timeout, "lookup email", func(ctx context.Context) (*userdomain.User, error) {
		return s.users.GetByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	code, err := s.confirmer.IssueCode(u)
	if err != nil {
		return nil, err
	}
	if err := s.create(ctx, u); err != nil {
		return nil, err
	}
	s.confirmer.SendCode(ctx, u, code)
	s.logger.Debug("principal registered", zap.String("user_id", u.ID))
	telemetry.EmitAsync(s.events, telemetry.NewEvent(telemetry.EventSignup, u.ID, ""))
	return u, nil
}

func (s *AccountService) create(ctx context.Context, u *userdomain.User) error {
	cctx, cancel := context.WithTimeout(ctx, s.storeTimeout())
	defer cancel()
	err := s.users.Create(cctx, u)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, userrepo.ErrDuplicateEmail):
		return ErrEmailAlreadyRegistered
	default:
		return storeError("create principal", err)
	}
}

func (s *AccountService) storeTimeout() time.Duration {
	if s.timeout <= 0 {
		return DefaultStoreTimeout
	}
	return s.timeout
}

// Login checks email and password and issues a token pair. Unknown email and wrong password both
// yield ErrInvalidCredentials; a correct password on an unconfirmed account yields ErrAccountNotConfirmed.
func (s *AccountService) Login(ctx context.Context, email, password string) (*security.TokenPair, *userdomain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}
	u, err := callStore(ctx, s.timeout, "lookup email", func(ctx context.Context) (*userdomain.User, error) {
		return s.users.GetByEmail(ctx, email)
	})
	if err != nil {
		return nil, nil, err
	}
	if u == nil || !s.hasher.Verify(password, u.PasswordHash) {
		s.emitLoginFailed(u, "invalid_credentials")
		return nil, nil, ErrInvalidCredentials
	}
	if !u.IsConfirmed() {
		s.emitLoginFailed(u, "not_confirmed")
		return nil, nil, ErrAccountNotConfirmed
	}
	pair, err := s.issuer.Issue(u)
	if err != nil {
		return nil, nil, err
	}
	telemetry.EmitAsync(s.events, telemetry.NewEvent(telemetry.EventLogin, u.ID, pair.SessionID))
	return pair, u, nil
}

func (s *AccountService) emitLoginFailed(u *userdomain.User, reason string) {
	ev := telemetry.NewEvent(telemetry.EventLoginFailed, "", "")
	if u != nil {
		ev.UserID = u.ID
	}
	ev.Reason = reason
	telemetry.EmitAsync(s.events, ev)
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordLength)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password must not be blank", ErrInvalidInput)
	}
	if password != confirm {
		return fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}
	return nil
}
