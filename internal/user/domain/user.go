package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the authorization role of a principal.
type Role string

const (
	RoleRegular  Role = "REGULAR"
	RoleElevated Role = "ELEVATED"
)

// User is the principal: an account that can authenticate and hold sessions.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Slug         string
	PasswordHash string
	Role         Role
	// ConfirmedAt is nil until the email confirmation code is accepted.
	ConfirmedAt *time.Time
	// ConfirmEmailOTPHash is the hash of the outstanding confirmation code; nil when none is pending.
	ConfirmEmailOTPHash *string
	// LastCredentialChangeAt invalidates every token issued strictly before it. Only moves forward.
	LastCredentialChangeAt *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsConfirmed reports whether the account completed email confirmation.
func (u *User) IsConfirmed() bool { return u.ConfirmedAt != nil }

// Username is the display name, "First Last".
func (u *User) Username() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// SetUsername splits a two-word username into first and last name and derives the slug.
func (u *User) SetUsername(username string) error {
	parts := strings.Fields(username)
	if len(parts) != 2 {
		return errors.New("username must be 2 words")
	}
	for _, p := range parts {
		if n := len([]rune(p)); n < 2 || n > 25 {
			return errors.New("each username word must be 2 to 25 characters")
		}
	}
	u.FirstName, u.LastName = parts[0], parts[1]
	u.Slug = strings.ToLower(parts[0] + "-" + parts[1])
	return nil
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.FirstName == "" || u.LastName == "" {
		return errors.New("username is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Role == "" {
		u.Role = RoleRegular
	}
	if u.Role != RoleRegular && u.Role != RoleElevated {
		return errors.New("unknown role")
	}
	return nil
}
