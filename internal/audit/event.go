package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"appauth/internal/authstate"
)

// EventType identifies what happened.
type EventType string

const (
	EventAuthorizationStarted    EventType = "authorization_started"
	EventAuthorized              EventType = "authorized"
	EventAuthorizationFailed     EventType = "authorization_failed"
	EventTokenRefreshed          EventType = "token_refreshed"
	EventReauthorizationRequired EventType = "reauthorization_required"
	EventRevoked                 EventType = "revoked"
	EventReset                   EventType = "reset"
)

// Event is one audit record.
type Event struct {
	ID     string          `json:"id"`
	Type   EventType       `json:"type"`
	Issuer string          `json:"issuer,omitempty"`
	Phase  authstate.Phase `json:"phase"`
	Detail string          `json:"detail,omitempty"`
	At     time.Time       `json:"at"`
}

// NewEvent creates an Event for the given state, stamped with a fresh id
// and the current time.
func NewEvent(t EventType, s *authstate.State, detail string) Event {
	ev := Event{
		ID:     uuid.New().String(),
		Type:   t,
		Detail: detail,
		At:     time.Now().UTC(),
	}
	if s != nil {
		ev.Issuer = s.Issuer
		ev.Phase = s.Phase()
	}
	return ev
}

// Sink receives audit events.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
