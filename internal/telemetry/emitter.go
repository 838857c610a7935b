// Package telemetry carries auth events (logins, logouts, rejected credentials) to an event sink.
// Emission is best-effort and never affects the outcome of the request that produced the event.
package telemetry

import (
	"context"
	"time"
)

// EventType names an auth event.
type EventType string

const (
	EventSignup         EventType = "signup"
	EventLogin          EventType = "login"
	EventLoginFailed    EventType = "login_failed"
	EventConfirmEmail   EventType = "confirm_email"
	EventLogoutOnly     EventType = "logout_only"
	EventLogoutAll      EventType = "logout_all"
	EventVerifyRejected EventType = "verify_rejected"
)

// Event is one auth event. Reason is a short stable label, never a secret or raw error text.
type Event struct {
	Type      EventType
	UserID    string
	SessionID string
	Source    string
	Reason    string
	CreatedAt time.Time
}

// NewEvent returns an event of type t stamped with the current time.
func NewEvent(t EventType, userID, sessionID string) *Event {
	return &Event{Type: t, UserID: userID, SessionID: sessionID, CreatedAt: time.Now().UTC()}
}

// EventEmitter emits auth events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
