// Package events publishes user lifecycle notifications so hosts can hang
// audit trails or webhooks off authentication without touching the flow.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind names a user lifecycle event.
type Kind string

const (
	KindUserCreated Kind = "user.created"
	KindUserLogin   Kind = "user.login"
)

// Payload describes the subject of an event.
type Payload struct {
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	Email    string    `json:"email,omitempty"`
	Issuer   string    `json:"issuer,omitempty"`
	Virtual  bool      `json:"virtual,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// Emitter receives user events. Emitters must not block request handling;
// anything slow belongs behind a queue on the implementer's side.
type Emitter interface {
	EmitUserEvent(ctx context.Context, kind Kind, p Payload)
}

// NewPayload stamps the payload with an id and timestamp.
func NewPayload(userID, email, issuer string, virtual bool) Payload {
	return Payload{
		EventID:  uuid.NewString(),
		UserID:   userID,
		Email:    email,
		Issuer:   issuer,
		Virtual:  virtual,
		Occurred: time.Now(),
	}
}

// LogEmitter is the default Emitter: it writes events to the structured
// log.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e *LogEmitter) EmitUserEvent(_ context.Context, kind Kind, p Payload) {
	e.Logger.Info("user event",
		"kind", string(kind),
		"event_id", p.EventID,
		"user_id", p.UserID,
		"issuer", p.Issuer,
	)
}
