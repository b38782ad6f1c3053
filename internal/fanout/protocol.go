package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charleschow/trade-bridge/internal/events"
)

// Envelope is the wire format for events sent over the fanout WebSocket.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Venue     string          `json:"venue,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalEvent serializes an Event into a JSON-encoded Envelope.
func MarshalEvent(evt events.Event) ([]byte, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(Envelope{
		Type:      string(evt.Type),
		ID:        evt.ID,
		Venue:     evt.Venue,
		Timestamp: evt.Timestamp,
		Payload:   payload,
	})
}

// UnmarshalEvent deserializes a JSON Envelope back into a typed Event.
func UnmarshalEvent(data []byte) (events.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	evt := events.Event{
		ID:        env.ID,
		Type:      events.EventType(env.Type),
		Venue:     env.Venue,
		Timestamp: env.Timestamp,
	}

	switch evt.Type {
	case events.EventExecution:
		var r events.ExecutionResult
		if err := json.Unmarshal(env.Payload, &r); err != nil {
			return evt, fmt.Errorf("unmarshal execution: %w", err)
		}
		evt.Payload = r
	case events.EventBreaker:
		var b events.BreakerEvent
		if err := json.Unmarshal(env.Payload, &b); err != nil {
			return evt, fmt.Errorf("unmarshal breaker: %w", err)
		}
		evt.Payload = b
	default:
		return evt, fmt.Errorf("unknown event type: %s", env.Type)
	}

	return evt, nil
}
