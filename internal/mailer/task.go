// Package mailer carries outbound email as tasks: the API publishes a Task to a queue and
// the worker renders and delivers it with retries.
package mailer

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind identifies the email template a task renders.
type Kind string

// KindConfirmEmail is the account confirmation email carrying a one-time code.
const KindConfirmEmail Kind = "confirm_email"

// Task is one outbound email. It is serialized as JSON onto the queue.
type Task struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	To        string    `json:"to"`
	Username  string    `json:"username,omitempty"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewConfirmEmailTask builds a confirmation task for to with the plaintext code.
func NewConfirmEmailTask(to, username, code string) Task {
	now := time.Now().UTC()
	return Task{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Kind:      KindConfirmEmail,
		To:        to,
		Username:  username,
		Code:      code,
		CreatedAt: now,
	}
}

// Validate rejects tasks the worker could never deliver.
func (t Task) Validate() error {
	if t.To == "" {
		return errors.New("mailer: task has no recipient")
	}
	switch t.Kind {
	case KindConfirmEmail:
		if t.Code == "" {
			return errors.New("mailer: confirm_email task has no code")
		}
	default:
		return errors.New("mailer: unknown task kind " + string(t.Kind))
	}
	return nil
}
