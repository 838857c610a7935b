package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mohamedFouadgebil/socialMedia/internal/security"
	userdomain "github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
)

func validSignup() SignupInput {
	return SignupInput{
		Username:        "Ada Lovelace",
		Email:           "Ada@Example.com",
		Password:        "engine-123",
		ConfirmPassword: "engine-123",
	}
}

func TestSignup_CreatesUnconfirmedPrincipal(t *testing.T) {
	f := newFixture(t)
	u, err := f.accounts.Signup(context.Background(), validSignup())
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	stored := f.users.get(u.ID)
	if stored == nil {
		t.Fatal("principal not stored")
	}
	if stored.Email != "ada@example.com" {
		t.Errorf("email = %q, want normalized", stored.Email)
	}
	if stored.FirstName != "Ada" || stored.LastName != "Lovelace" || stored.Slug != "ada-lovelace" {
		t.Errorf("name = %q %q slug %q", stored.FirstName, stored.LastName, stored.Slug)
	}
	if stored.Role != userdomain.RoleRegular {
		t.Errorf("role = %s, want REGULAR", stored.Role)
	}
	if stored.PasswordHash == "engine-123" || !f.hasher.Verify("engine-123", stored.PasswordHash) {
		t.Error("password must be stored as a verifying hash")
	}
	if stored.IsConfirmed() || stored.ConfirmEmailOTPHash == nil {
		t.Error("new principal should be unconfirmed with a code pending")
	}
	task := f.queue.last(t)
	if task.To != "ada@example.com" || task.Username != "Ada Lovelace" {
		t.Errorf("task = %+v", task)
	}
}

// The account and its first code are stored in one write, so a lost email never strands the account.
func TestSignup_FirstCodeStoredWithAccount(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("broker down")

	u, err := f.accounts.Signup(context.Background(), validSignup())
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if got := f.users.writeCount(); got != 0 {
		t.Errorf("updates after create = %d, want 0", got)
	}
	if f.users.get(u.ID).ConfirmEmailOTPHash == nil {
		t.Fatal("first code hash should be stored by create")
	}

	f.queue.err = nil
	if err := f.confirm.Resend(context.Background(), "ada@example.com"); err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if err := f.confirm.Confirm(context.Background(), "ada@example.com", f.queue.last(t).Code); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := f.accounts.Signup(context.Background(), validSignup()); !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Errorf("second signup: err = %v, want ErrEmailAlreadyRegistered", err)
	}
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*SignupInput)
	}{
		{"empty email", func(in *SignupInput) { in.Email = "" }},
		{"bad email", func(in *SignupInput) { in.Email = "ada@" }},
		{"short password", func(in *SignupInput) { in.Password, in.ConfirmPassword = "short", "short" }},
		{"blank password", func(in *SignupInput) { in.Password, in.ConfirmPassword = "        ", "        " }},
		{"mismatched confirmation", func(in *SignupInput) { in.ConfirmPassword = "engine-124" }},
		{"one-word username", func(in *SignupInput) { in.Username = "Ada" }},
		{"three-word username", func(in *SignupInput) { in.Username = "Ada King Lovelace" }},
		{"short username word", func(in *SignupInput) { in.Username = "A Lovelace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validSignup()
			tt.modify(&in)
			if _, err := f.accounts.Signup(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Signup err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	if _, err := f.accounts.Signup(context.Background(), validSignup()); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	in := validSignup()
	in.Email = "ADA@example.com"
	if _, err := f.accounts.Signup(context.Background(), in); !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Errorf("duplicate signup: err = %v", err)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	u, err := f.accounts.Signup(context.Background(), validSignup())
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	if _, _, err := f.accounts.Login(context.Background(), "ada@example.com", "engine-123"); !errors.Is(err, ErrAccountNotConfirmed) {
		t.Fatalf("unconfirmed login: err = %v, want ErrAccountNotConfirmed", err)
	}
	if err := f.confirm.Confirm(context.Background(), "ada@example.com", f.queue.last(t).Code); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"wrong password", "ada@example.com", "engine-124", ErrInvalidCredentials},
		{"unknown email", "bob@example.com", "engine-123", ErrInvalidCredentials},
		{"empty password", "ada@example.com", "", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := f.accounts.Login(context.Background(), tt.email, tt.password); !errors.Is(err, tt.wantErr) {
				t.Errorf("Login err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	pair, principal, err := f.accounts.Login(context.Background(), " ADA@example.com", "engine-123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if principal.ID != u.ID || pair.Level != security.LevelUser {
		t.Errorf("principal=%s level=%s", principal.ID, pair.Level)
	}
	if _, err := f.verifier.Verify(context.Background(), bearer(pair.Level, pair.AccessToken), security.KindAccess); err != nil {
		t.Errorf("issued token does not verify: %v", err)
	}
}

func TestLogin_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.confirmedUser(t, "u1", userdomain.RoleRegular)
	f.users.block = true
	if _, _, err := f.accounts.Login(context.Background(), "u1@example.com", "password123"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Login err = %v, want ErrStoreUnavailable", err)
	}
}

func TestIssue_PairSharesSession(t *testing.T) {
	f := newFixture(t)
	u := f.confirmedUser(t, "u1", userdomain.RoleRegular)

	a := mustIssue(t, f, u)
	b := mustIssue(t, f, u)
	if a.SessionID == "" || a.SessionID == b.SessionID {
		t.Errorf("session ids %q, %q; want distinct", a.SessionID, b.SessionID)
	}
	access, err := f.tokens.Parse(a.AccessToken, a.Level, security.KindAccess)
	if err != nil {
		t.Fatalf("Parse access: %v", err)
	}
	refresh, err := f.tokens.Parse(a.RefreshToken, a.Level, security.KindRefresh)
	if err != nil {
		t.Fatalf("Parse refresh: %v", err)
	}
	if access.SessionID != refresh.SessionID || access.Subject != refresh.Subject || !access.IssuedAtTime().Equal(refresh.IssuedAtTime()) {
		t.Errorf("access %+v and refresh %+v claims differ", access, refresh)
	}
	if _, err := f.issuer.Issue(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Issue(nil) err = %v", err)
	}
	if f.sessions.Len() != 0 || f.users.writeCount() != 0 {
		t.Error("issuing must not write to any store")
	}
}

func TestIssue_UnknownRoleSignsAsUser(t *testing.T) {
	f := newFixture(t)
	u := f.confirmedUser(t, "u1", userdomain.Role("MODERATOR"))
	if pair := mustIssue(t, f, u); pair.Level != security.LevelUser {
		t.Errorf("level = %s, want USER", pair.Level)
	}
}
