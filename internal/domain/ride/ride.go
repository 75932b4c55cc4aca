package ride

import (
	"errors"
	"strings"
	"time"

	"ride-dispatch/internal/domain/geo"
)

// Ride is the domain entity corresponding to the `rides` table.
type Ride struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Actors
	RiderID  string
	DriverID string // empty until accepted

	// Core state
	Status Status

	// Trip
	Pickup        geo.Point
	Dropoff       geo.Point
	Fare          float64
	DistanceMiles float64

	// Payment hold reference, set at acceptance when the driver has a connected account
	PaymentIntentID string

	// Lifecycle timestamps
	RequestedAt time.Time
	AcceptedAt  *time.Time
	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	CancellationReason string
}

// Party is the (rider, driver) pair currently associated with a ride.
// DriverID is empty until the ride is accepted.
type Party struct {
	RiderID  string `json:"rider_id"`
	DriverID string `json:"driver_id,omitempty"`
}

// Has reports whether userID is the rider or the assigned driver.
func (party Party) Has(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == party.RiderID || (party.DriverID != "" && userID == party.DriverID)
}

var (
	ErrRiderRequired = errors.New("rider id is required")
	ErrNegativeFare  = errors.New("fare cannot be negative")
	ErrNotFound      = errors.New("ride not found")
)

// NewRide creates a new ride in REQUESTED state.
func NewRide(id, riderID string, pickup, dropoff geo.Point, fare, distanceMiles float64) (*Ride, error) {
	if riderID = strings.TrimSpace(riderID); riderID == "" {
		return nil, ErrRiderRequired
	}
	if err := pickup.Validate(); err != nil {
		return nil, err
	}
	if err := dropoff.Validate(); err != nil {
		return nil, err
	}
	if fare < 0 {
		return nil, ErrNegativeFare
	}

	now := time.Now().UTC()
	return &Ride{
		ID:            id,
		CreatedAt:     now,
		UpdatedAt:     now,
		RiderID:       riderID,
		Status:        StatusRequested,
		Pickup:        pickup,
		Dropoff:       dropoff,
		Fare:          fare,
		DistanceMiles: distanceMiles,
		RequestedAt:   now,
	}, nil
}

// Party returns the ride's current (rider, driver) pair.
func (ride *Ride) Party() Party {
	return Party{RiderID: ride.RiderID, DriverID: ride.DriverID}
}

// FareCents returns the fare in the smallest currency unit.
func (ride *Ride) FareCents() int64 {
	return int64(ride.Fare*100 + 0.5)
}
