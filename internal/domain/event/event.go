// Package event describes the domain events emitted after a credential
// state change has been committed.
package event

import (
	"encoding/json"
	"time"

	"github.com/oksasatya/go-credential-service/internal/domain/entity"
)

// Type names an event on the wire.
type Type string

const (
	Registered    Type = "UserRegisteredEvent"
	StatusUpdated Type = "UserUpdatedStatusEvent"
)

// Event is an immutable notification about one credential.
type Event struct {
	Type      Type
	Payload   entity.View
	EmittedAt time.Time
}

type wireEvent struct {
	Type      Type        `json:"type"`
	Message   entity.View `json:"message"`
	EmittedAt string      `json:"emitted_at"`
}

func New(t Type, c *entity.Credential) Event {
	return Event{Type: t, Payload: c.View(), EmittedAt: time.Now().UTC()}
}

// Marshal serializes the event to its JSON wire form.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(wireEvent{
		Type:      e.Type,
		Message:   e.Payload,
		EmittedAt: e.EmittedAt.Format(time.RFC3339),
	})
}
