package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohamedFouadgebil/socialMedia/internal/mailer"
	"github.com/mohamedFouadgebil/socialMedia/internal/security"
	sessiondomain "github.com/mohamedFouadgebil/socialMedia/internal/session/domain"
	sessionrepo "github.com/mohamedFouadgebil/socialMedia/internal/session/repository"
	userdomain "github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
	userrepo "github.com/mohamedFouadgebil/socialMedia/internal/user/repository"
)

// testClock is a settable clock shared by every component of a fixture.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// memUserRepo is an in-memory user repository with the same conditional-update semantics as Postgres.
type memUserRepo struct {
	mu       sync.Mutex
	byID     map[string]*userdomain.User
	failures map[string]int
	writes   int
	// block makes every call wait for its context to end.
	block bool
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[string]*userdomain.User), failures: make(map[string]int)}
}

func (r *memUserRepo) wait(ctx context.Context) error {
	r.mu.Lock()
	block := r.block
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func clone(u *userdomain.User) *userdomain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.byID[id]), nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetUnconfirmedByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	u, err := r.GetByEmail(ctx, email)
	if err != nil || u == nil {
		return nil, err
	}
	if u.ConfirmedAt != nil {
		return nil, nil
	}
	return u, nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == u.Email {
			return userrepo.ErrDuplicateEmail
		}
	}
	r.byID[u.ID] = clone(u)
	return nil
}

func (r *memUserRepo) SetConfirmOTPHash(ctx context.Context, id, otpHash string, at time.Time) (bool, error) {
	if err := r.wait(ctx); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.ConfirmedAt != nil {
		return false, nil
	}
	h := otpHash
	u.ConfirmEmailOTPHash = &h
	u.UpdatedAt = at
	r.failures[id] = 0
	r.writes++
	return true, nil
}

func (r *memUserRepo) RecordConfirmFailure(ctx context.Context, id, otpHash string, maxAttempts int, at time.Time) (bool, error) {
	if err := r.wait(ctx); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.ConfirmedAt != nil || u.ConfirmEmailOTPHash == nil || *u.ConfirmEmailOTPHash != otpHash {
		return false, nil
	}
	r.failures[id]++
	if r.failures[id] >= maxAttempts {
		u.ConfirmEmailOTPHash = nil
	}
	u.UpdatedAt = at
	r.writes++
	return u.ConfirmEmailOTPHash == nil, nil
}

func (r *memUserRepo) failureCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[id]
}

func (r *memUserRepo) MarkConfirmed(ctx context.Context, id, otpHash string, at time.Time) (bool, error) {
	if err := r.wait(ctx); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.ConfirmedAt != nil || u.ConfirmEmailOTPHash == nil || *u.ConfirmEmailOTPHash != otpHash {
		return false, nil
	}
	t := at
	u.ConfirmedAt = &t
	u.ConfirmEmailOTPHash = nil
	u.UpdatedAt = at
	r.writes++
	return true, nil
}

func (r *memUserRepo) AdvanceCredentialChange(ctx context.Context, id string, at time.Time) (bool, error) {
	if err := r.wait(ctx); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	if u.LastCredentialChangeAt == nil || at.After(*u.LastCredentialChangeAt) {
		t := at
		u.LastCredentialChangeAt = &t
	}
	u.UpdatedAt = at
	r.writes++
	return true, nil
}

func (r *memUserRepo) put(u *userdomain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = clone(u)
}

func (r *memUserRepo) get(id string) *userdomain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.byID[id])
}

func (r *memUserRepo) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

func (r *memUserRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// captureQueue records enqueued mail tasks.
type captureQueue struct {
	mu    sync.Mutex
	tasks []mailer.Task
	err   error
}

func (q *captureQueue) Enqueue(_ context.Context, t mailer.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *captureQueue) last(t *testing.T) mailer.Task {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		t.Fatal("no mail task enqueued")
	}
	return q.tasks[len(q.tasks)-1]
}

// failingSessionRepo fails or blocks every call.
type failingSessionRepo struct {
	err error
}

func (r failingSessionRepo) Insert(ctx context.Context, _ *sessiondomain.RevokedSession) error {
	return r.fail(ctx)
}

func (r failingSessionRepo) IsRevoked(ctx context.Context, _ string, _ time.Time) (bool, error) {
	return false, r.fail(ctx)
}

func (r failingSessionRepo) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	return 0, r.fail(ctx)
}

func (r failingSessionRepo) fail(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type fixture struct {
	clock    *testClock
	users    *memUserRepo
	sessions *sessionrepo.MemoryRepository
	queue    *captureQueue
	hasher   *security.Hasher
	tokens   *security.TokenProvider
	revoked  *RevocationStore
	issuer   *Issuer
	verifier *Verifier
	policy   *InvalidationPolicy
	confirm  *ConfirmationFlow
	accounts *AccountService
}

var fixtureEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    &testClock{t: fixtureEpoch},
		users:    newMemUserRepo(),
		sessions: sessionrepo.NewMemoryRepository(),
		queue:    &captureQueue{},
		hasher:   security.NewHasher(bcrypt.MinCost),
	}
	timeout := 200 * time.Millisecond
	f.tokens = security.NewTestTokenProvider().WithClock(f.clock.now)
	f.revoked = NewRevocationStore(f.sessions, timeout)
	f.revoked.now = f.clock.now
	f.issuer = NewIssuer(f.tokens)
	f.verifier = NewVerifier(f.tokens, f.users, f.revoked, timeout)
	f.policy = NewInvalidationPolicy(f.revoked, f.users, f.tokens.RefreshTTL(), timeout)
	f.policy.now = f.clock.now
	f.confirm = NewConfirmationFlow(f.users, f.hasher, f.queue, 6, timeout, nil)
	f.confirm.now = f.clock.now
	f.accounts = NewAccountService(f.users, f.hasher, f.issuer, f.confirm, nil, timeout, nil)
	f.accounts.now = f.clock.now
	return f
}

// confirmedUser stores a confirmed principal with the given role and password "password123".
func (f *fixture) confirmedUser(t *testing.T, id string, role userdomain.Role) *userdomain.User {
	t.Helper()
	hash, err := f.hasher.Hash("password123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	confirmed := f.clock.now()
	u := &userdomain.User{
		ID:           id,
		Email:        id + "@example.com",
		FirstName:    "Test",
		LastName:     "User",
		Slug:         "test-user",
		PasswordHash: hash,
		Role:         role,
		ConfirmedAt:  &confirmed,
		CreatedAt:    confirmed,
		UpdatedAt:    confirmed,
	}
	f.users.put(u)
	return u
}

// unconfirmedUser stores an unconfirmed principal with no code pending.
func (f *fixture) unconfirmedUser(t *testing.T, id string) *userdomain.User {
	t.Helper()
	u := f.confirmedUser(t, id, userdomain.RoleRegular)
	u.ConfirmedAt = nil
	f.users.put(u)
	return u
}

func bearer(level security.Level, token string) string {
	return string(level) + " " + token
}

func zapNop() *zap.Logger { return zap.NewNop() }
