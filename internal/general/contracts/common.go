package contracts

import "time"

// Envelope adds cross-cutting headers all broker messages carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // request id of the HTTP call that caused the message
	Producer      string    `json:"producer,omitempty"`       // e.g. "dispatch-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // UTC
}

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}
