package events

import "time"

// Event is the envelope that flows through the event bus.
type Event struct {
	ID        string
	Type      EventType
	Venue     string
	Timestamp time.Time
	Payload   any
}

type EventType string

const (
	// EventSignal is published once per authenticated inbound signal.
	EventSignal EventType = "signal"
	// EventExecution carries one ExecutionResult (primary or secondary).
	EventExecution EventType = "execution"
	// EventBreaker reports a circuit breaker state change.
	EventBreaker EventType = "breaker"
)
