package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind tags an Event. The set is closed: Validate rejects anything else,
// so downstream switches can stay exhaustive.
type Kind string

const (
	KindHeartbeat       Kind = "HEARTBEAT"
	KindAlarm           Kind = "ALARM"
	KindNotice          Kind = "NOTICE"
	KindMessage         Kind = "MESSAGE"
	KindUserUpdate      Kind = "USER_UPDATE"
	KindWorkspaceUpdate Kind = "WORKSPACE_UPDATE"
)

// ErrInvalid is wrapped by all Validate failures.
var ErrInvalid = errors.New("invalid event")

// Event is an immutable notification value. Payload must be
// JSON-serializable; if it is not, the wire form degrades to an error
// placeholder instead of dropping the event.
type Event struct {
	ID        string
	Kind      Kind
	Payload   any
	CreatedAt time.Time
}

// New stamps a fresh id and creation time.
func New(kind Kind, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// Validate checks the kind/payload rules. HEARTBEAT needs no payload;
// every other kind requires one.
func (e Event) Validate() error {
	switch e.Kind {
	case KindHeartbeat:
		return nil
	case KindAlarm, KindNotice, KindMessage, KindUserUpdate, KindWorkspaceUpdate:
		if emptyPayload(e.Payload) {
			return fmt.Errorf("%w: %s requires a payload", ErrInvalid, e.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalid, string(e.Kind))
	}
}

func emptyPayload(p any) bool {
	switch v := p.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	default:
		return false
	}
}

// Envelope is the wire form pushed to clients.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// errorPayload is substituted when the payload cannot be serialized.
var errorPayload = json.RawMessage(`{"error":"payload serialization failed"}`)

// Envelope serializes the payload. A payload that cannot be marshaled is
// replaced with an error placeholder; the event is still delivered.
func (e Event) Envelope() Envelope {
	env := Envelope{
		ID:        e.ID,
		Type:      string(e.Kind),
		Payload:   json.RawMessage("null"),
		Timestamp: e.CreatedAt,
	}
	if e.Payload == nil {
		return env
	}
	b, err := json.Marshal(e.Payload)
	if err != nil {
		env.Payload = errorPayload
		return env
	}
	env.Payload = b
	return env
}

// MarshalWire renders the full envelope as JSON.
func (e Event) MarshalWire() []byte {
	b, err := json.Marshal(e.Envelope())
	if err != nil {
		// Envelope fields are all marshal-safe; this cannot fail in practice.
		return []byte(`{"error":"event serialization failed"}`)
	}
	return b
}
