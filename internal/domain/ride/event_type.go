package ride

import (
	"errors"
	"strings"
)

// EventType is the kind of a `ride_events` audit row.
type EventType string

const (
	EventRideRequested EventType = "RIDE_REQUESTED"
	EventRideAccepted  EventType = "RIDE_ACCEPTED"
	EventDriverArrived EventType = "DRIVER_ARRIVED"
	EventRideStarted   EventType = "RIDE_STARTED"
	EventRideCompleted EventType = "RIDE_COMPLETED"
	EventRideCancelled EventType = "RIDE_CANCELLED"
)

var ErrInvalidEventType = errors.New("invalid ride event type")

// ParseEventType normalizes (uppercases+trims) and validates an event type string.
func ParseEventType(input string) (EventType, error) {
	eventType := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if eventType.Valid() {
		return eventType, nil
	}
	return "", ErrInvalidEventType
}

// Valid reports whether eventType is one of the allowed event type constants.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventRideRequested,
		EventRideAccepted,
		EventDriverArrived,
		EventRideStarted,
		EventRideCompleted,
		EventRideCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (eventType EventType) String() string {
	return string(eventType)
}

// EventTypeFor maps the status a ride entered to the audit event recorded for it.
func EventTypeFor(status Status) (EventType, bool) {
	switch status {
	case StatusRequested:
		return EventRideRequested, true
	case StatusAccepted:
		return EventRideAccepted, true
	case StatusArrived:
		return EventDriverArrived, true
	case StatusStarted:
		return EventRideStarted, true
	case StatusCompleted:
		return EventRideCompleted, true
	case StatusCancelled:
		return EventRideCancelled, true
	default:
		return "", false
	}
}
