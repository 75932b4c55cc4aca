package contracts

import "encoding/json"

// WebSocket message types.
const (
	// client -> server
	WSAuthenticate   = "authenticate"
	WSDriverOnline   = "driver_online"
	WSDriverOffline  = "driver_offline"
	WSUpdateLocation = "update_location"

	// server -> client
	WSAuthenticated    = "authenticated"
	WSAuthError        = "auth_error"
	WSRideRequest      = "ride_request"
	WSRideStatusUpdate = "ride_status_update"
	WSDriverLocation   = "driver_location"
	WSDriverStatus     = "driver_status"
	WSError            = "error"
)

// WSInbound is the envelope of every client frame. Data is decoded per Type.
type WSInbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WSOutbound is the envelope of every server frame.
type WSOutbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type WSAuthenticatePayload struct {
	Token string `json:"token"` // "Bearer <jwt>"
}

type WSAuthenticatedPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// WSDriverPresencePayload is the body of driver_online, driver_offline and update_location.
// Coordinates are ignored for driver_offline.
type WSDriverPresencePayload struct {
	DriverID  string   `json:"driver_id"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type WSRideRequestPayload struct {
	RideID        string   `json:"ride_id"`
	Pickup        GeoPoint `json:"pickup"`
	Dropoff       GeoPoint `json:"dropoff"`
	Fare          float64  `json:"fare"`
	DistanceMiles float64  `json:"distance_miles,omitempty"`
}

type WSRideStatusPayload struct {
	RideID   string `json:"ride_id"`
	Status   string `json:"status"`
	DriverID string `json:"driver_id,omitempty"`
}

type WSDriverLocationPayload struct {
	RideID    string  `json:"ride_id"`
	DriverID  string  `json:"driver_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type WSDriverStatusPayload struct {
	Status string `json:"status"` // online|offline
}

type WSErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
