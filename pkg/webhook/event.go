package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType identifies a billing event. The set is open: providers emit many
// more types than the reconciliation path consumes, and unrecognized types
// flow through to generic handlers untouched.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
)

// Recognized reports whether the type drives subscription reconciliation.
func (t EventType) Recognized() bool {
	switch t {
	case EventCheckoutCompleted, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	}
	return false
}

// Event is a verified billing event envelope. Object holds the raw
// `data.object` payload for type-specific decoding; Raw holds the complete
// verified body for generic consumers and audit logging.
type Event struct {
	ID        string
	Type      EventType
	CreatedAt time.Time
	Object    json.RawMessage
	Raw       json.RawMessage
}

// ParseEvent decodes the event envelope. Call only on verified payloads;
// Verifier.Verify does both steps in order.
func ParseEvent(payload []byte) (*Event, error) {
	var envelope struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if envelope.Type == "" {
		return nil, errors.Join(ErrMalformedEvent, fmt.Errorf("event has no type"))
	}

	event := &Event{
		ID:     envelope.ID,
		Type:   EventType(envelope.Type),
		Object: envelope.Data.Object,
		Raw:    payload,
	}
	if envelope.Created > 0 {
		event.CreatedAt = time.Unix(envelope.Created, 0).UTC()
	}
	return event, nil
}
