package contracts

import "time"

// RideStatusMessage is published on every committed ride transition.
// Routing key: "ride.status.{status}" on ExchangeRideTopic.
type RideStatusMessage struct {
	RideID    string    `json:"ride_id"`
	Status    string    `json:"status"` // REQUESTED|ACCEPTED|ARRIVED|STARTED|COMPLETED|CANCELLED
	Previous  string    `json:"previous_status,omitempty"`
	RiderID   string    `json:"rider_id"`
	DriverID  string    `json:"driver_id,omitempty"`
	Fare      float64   `json:"fare,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}
