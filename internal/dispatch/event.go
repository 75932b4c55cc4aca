package dispatch

import (
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
)

// Event is a domain event the router fans out to live sessions. The set of
// variants is closed; see the types below.
type Event interface {
	eventName() string
}

// RideRequested is published when a rider creates a ride.
type RideRequested struct {
	RideID        string
	Party         ride.Party
	Pickup        geo.Point
	Dropoff       geo.Point
	Fare          float64
	DistanceMiles float64
}

// RideAccepted is published when a driver wins a ride.
type RideAccepted struct {
	RideID string
	Party  ride.Party
}

// RideStatusChanged is published on every later transition, including cancellation.
type RideStatusChanged struct {
	RideID   string
	Party    ride.Party
	Previous ride.Status
	Status   ride.Status
}

// DriverLocationChanged is published after an online driver reports a new position.
type DriverLocationChanged struct {
	DriverID  string
	Latitude  float64
	Longitude float64
	At        time.Time
}

// DriverPresenceChanged is published when a driver goes online or offline.
type DriverPresenceChanged struct {
	DriverID string
	Online   bool
}

func (RideRequested) eventName() string         { return "ride_requested" }
func (RideAccepted) eventName() string          { return "ride_accepted" }
func (RideStatusChanged) eventName() string     { return "ride_status_changed" }
func (DriverLocationChanged) eventName() string { return "driver_location_changed" }
func (DriverPresenceChanged) eventName() string { return "driver_presence_changed" }

// EventName returns a stable name for logging.
func EventName(e Event) string {
	if e == nil {
		return ""
	}
	return e.eventName()
}

// StatusEvent returns the event published after a committed transition.
func StatusEvent(t ride.Transition) Event {
	if t.To == ride.StatusAccepted {
		return RideAccepted{RideID: t.Ride.ID, Party: t.Ride.Party()}
	}
	return RideStatusChanged{
		RideID:   t.Ride.ID,
		Party:    t.Ride.Party(),
		Previous: t.From,
		Status:   t.To,
	}
}
