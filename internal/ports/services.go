package ports

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
)

// ----- Collaborators -----

// PaymentHold describes the hold placed when a ride is accepted.
type PaymentHold struct {
	PaymentIntentID    string
	RideID             string
	AmountCents        int64
	Currency           string
	DestinationAccount string
	Metadata           map[string]string
}

// PaymentGateway places, captures and voids payment holds.
type PaymentGateway interface {
	CreateHold(ctx context.Context, hold PaymentHold) error
	Capture(ctx context.Context, paymentIntentID string) error
	Void(ctx context.Context, paymentIntentID string) error
}

// Notification is a templated SMS or email.
type Notification struct {
	Channel   string // "sms" | "email"
	Template  string
	Recipient string
	UserID    string
	Variables map[string]string
}

// Notifier delivers notifications to users outside the socket channel.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// RideStatusPublisher streams committed transitions to other services.
type RideStatusPublisher interface {
	PublishStatus(ctx context.Context, r *ride.Ride, previous ride.Status) error
}

// ----- DTOs for Ride Service -----

// QuoteInput is the validated input for pricing a trip.
type QuoteInput struct {
	Pickup  geo.Point
	Dropoff geo.Point
}

// Quote is returned by RideService.Quote() and embedded in RequestRideResult.
type Quote struct {
	Fare          float64 `json:"fare"`
	DistanceMiles float64 `json:"distance_miles"`
	ETAMinutes    int     `json:"eta_minutes"`
}

// RequestRideInput is the validated input required to create a ride.
type RequestRideInput struct {
	RiderID string
	Pickup  geo.Point
	Dropoff geo.Point
}

// RequestRideResult is returned by RideService.RequestRide().
type RequestRideResult struct {
	RideID string `json:"ride_id"`
	Status string `json:"status"`
	Quote
	CandidatesNotified int `json:"candidates_notified"`
}

// StatusInput carries a status change requested by a ride party.
type StatusInput struct {
	RideID string
	Actor  ride.Actor
	Status ride.Status
	Reason string // cancellations only
}

// ListRidesInput asks for the caller's rides.
type ListRidesInput struct {
	Actor      ride.Actor
	ActiveOnly bool
	Limit      int // 0 uses the default page size
}

// RideView is the API representation of a ride.
type RideView struct {
	RideID             string     `json:"ride_id"`
	Status             string     `json:"status"`
	RiderID            string     `json:"rider_id"`
	DriverID           string     `json:"driver_id,omitempty"`
	Pickup             geo.Point  `json:"pickup"`
	Dropoff            geo.Point  `json:"dropoff"`
	Fare               float64    `json:"fare"`
	DistanceMiles      float64    `json:"distance_miles"`
	RequestedAt        time.Time  `json:"requested_at"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	ArrivedAt          *time.Time `json:"arrived_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

// NewRideView maps a domain ride to its API representation.
func NewRideView(r *ride.Ride) RideView {
	return RideView{
		RideID:             r.ID,
		Status:             r.Status.String(),
		RiderID:            r.RiderID,
		DriverID:           r.DriverID,
		Pickup:             r.Pickup,
		Dropoff:            r.Dropoff,
		Fare:               r.Fare,
		DistanceMiles:      r.DistanceMiles,
		RequestedAt:        r.RequestedAt,
		AcceptedAt:         r.AcceptedAt,
		ArrivedAt:          r.ArrivedAt,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		CancelledAt:        r.CancelledAt,
		CancellationReason: r.CancellationReason,
	}
}

// ----- Ride Service Interface -----

// RideService exposes the boundary for ride lifecycle operations.
type RideService interface {
	Quote(ctx context.Context, in QuoteInput) (Quote, error)
	RequestRide(ctx context.Context, in RequestRideInput) (RequestRideResult, error)
	Accept(ctx context.Context, rideID string, actor ride.Actor) (RideView, error)
	UpdateStatus(ctx context.Context, in StatusInput) (RideView, error)
	Cancel(ctx context.Context, in StatusInput) (RideView, error)
	Get(ctx context.Context, rideID string, actor ride.Actor) (RideView, error)
	List(ctx context.Context, in ListRidesInput) ([]RideView, error)
}

// ----- Presence snapshot for the health probe -----

// DispatchStats reports live counters.
type DispatchStats struct {
	Connections   int `json:"connections"`
	OnlineDrivers int `json:"online_drivers"`
}

// Actor builds a ride.Actor from authenticated claims.
func Actor(userID string, role user.Role) ride.Actor {
	return ride.Actor{UserID: userID, Role: role}
}

// ----- Admin board -----

// RideMetrics aggregates stored rides for the admin board.
type RideMetrics interface {
	CountByStatusSince(ctx context.Context, since time.Time) (map[ride.Status]int, error)
}

// OnlineDriverView is one entry of the live driver list.
type OnlineDriverView struct {
	DriverID      string    `json:"driver_id"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	ActiveRides   []string  `json:"active_rides,omitempty"`
}

// SystemOverview combines live dispatch counters with today's ride counts.
type SystemOverview struct {
	Timestamp   time.Time      `json:"timestamp"`
	Live        DispatchStats  `json:"live"`
	RidesToday  map[string]int `json:"rides_today"`
	ActiveRides int            `json:"active_rides"`
}

// AdminService serves the admin board.
type AdminService interface {
	Overview(ctx context.Context) (SystemOverview, error)
	OnlineDrivers(ctx context.Context) []OnlineDriverView
}
