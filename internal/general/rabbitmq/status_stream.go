package rabbitmq

import (
	"context"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// StatusStream publishes every committed ride transition on ride.status.{status}.
type StatusStream struct {
	pub Publisher
}

func NewStatusStream(pub Publisher) *StatusStream {
	return &StatusStream{pub: pub}
}

var _ ports.RideStatusPublisher = (*StatusStream)(nil)

func (s *StatusStream) PublishStatus(ctx context.Context, r *ride.Ride, previous ride.Status) error {
	msg := contracts.RideStatusMessage{
		RideID:    r.ID,
		Status:    r.Status.String(),
		Previous:  previous.String(),
		RiderID:   r.RiderID,
		DriverID:  r.DriverID,
		Fare:      r.Fare,
		Timestamp: r.UpdatedAt,
	}
	return publishJSON(ctx, s.pub, contracts.ExchangeRideTopic,
		contracts.RouteRideStatusPrefix+r.Status.String(), &msg.Envelope, &msg)
}
