package events

import (
	"encoding/json"
	"time"
)

// Type names a domain event.
type Type string

const (
	TypeCartItemAdded Type = "cart.item_added"
	TypeOrderPlaced   Type = "order.placed"
)

// Envelope is the stable wire structure of every published event.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  Type            `json:"eventType"`
	SessionID  string          `json:"sessionId,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// DomainEvent is what producers hand to an Emitter.
type DomainEvent struct {
	Type       Type
	SessionID  string
	Data       any
	Version    int
	OccurredAt time.Time
}
