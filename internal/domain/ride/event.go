package ride

import (
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"
)

// Event is an audit record of a ride lifecycle step, stored in `ride_events`.
type Event struct {
	ID        string
	CreatedAt time.Time

	RideID  string
	ActorID string

	Type EventType
	Data map[string]any
}

var ErrRideIDRequired = errors.New("ride id is required")

// NewEvent builds an audit record for a ride.
func NewEvent(rideID, actorID string, eventType EventType, data map[string]any) (*Event, error) {
	if rideID = strings.TrimSpace(rideID); rideID == "" {
		return nil, ErrRideIDRequired
	}
	if !eventType.Valid() {
		return nil, ErrInvalidEventType
	}

	payload := make(map[string]any, len(data))
	maps.Copy(payload, data)

	return &Event{
		RideID:    rideID,
		ActorID:   actorID,
		Type:      eventType,
		Data:      payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventFromTransition records the step described by t, performed by actorID.
func EventFromTransition(t Transition, actorID string) (*Event, error) {
	eventType, ok := EventTypeFor(t.To)
	if !ok {
		return nil, ErrInvalidEventType
	}

	data := map[string]any{
		"from": t.From.String(),
		"to":   t.To.String(),
	}
	if t.Ride.DriverID != "" {
		data["driver_id"] = t.Ride.DriverID
	}
	if t.Intent != IntentNone {
		data["payment_intent"] = string(t.Intent)
	}
	if t.Ride.CancellationReason != "" {
		data["reason"] = t.Ride.CancellationReason
	}
	return NewEvent(t.Ride.ID, actorID, eventType, data)
}

// DataJSON returns event.Data encoded as JSON.
func (event *Event) DataJSON() ([]byte, error) {
	if event.Data == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(event.Data)
}
