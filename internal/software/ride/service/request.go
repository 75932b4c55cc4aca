package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

// ErrValidation marks input errors; handlers map it to 400.
var ErrValidation = errors.New("validation failed")

func validationError(err error) error {
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// Quote prices a trip without creating a ride.
func (service *rideService) Quote(ctx context.Context, in ports.QuoteInput) (ports.Quote, error) {
	if err := in.Pickup.Validate(); err != nil {
		return ports.Quote{}, validationError(fmt.Errorf("pickup: %w", err))
	}
	if err := in.Dropoff.Validate(); err != nil {
		return ports.Quote{}, validationError(fmt.Errorf("dropoff: %w", err))
	}
	return service.pricing.quote(in.Pickup, in.Dropoff), nil
}

// RequestRide creates a ride in REQUESTED state and offers it to candidate drivers.
func (service *rideService) RequestRide(ctx context.Context, in ports.RequestRideInput) (ports.RequestRideResult, error) {
	in.RiderID = strings.TrimSpace(in.RiderID)
	if in.RiderID == "" {
		return ports.RequestRideResult{}, validationError(ride.ErrRiderRequired)
	}

	quote, err := service.Quote(ctx, ports.QuoteInput{Pickup: in.Pickup, Dropoff: in.Dropoff})
	if err != nil {
		return ports.RequestRideResult{}, err
	}

	r, err := ride.NewRide(service.newID(), in.RiderID, in.Pickup, in.Dropoff, quote.Fare, quote.DistanceMiles)
	if err != nil {
		return ports.RequestRideResult{}, validationError(err)
	}
	ctx = service.logger.WithRideID(ctx, r.ID)

	if err := service.rides.Create(ctx, r); err != nil {
		service.logger.Error(ctx, "ride_create_failed", "Failed to create ride", err, map[string]any{
			"rider_id": in.RiderID,
		})
		return ports.RequestRideResult{}, fmt.Errorf("create ride: %w", err)
	}

	created := *r
	service.afterCommit(ctx, r.ID, func(ctx context.Context) {
		service.audit(ctx, ride.Transition{To: ride.StatusRequested, Ride: created}, in.RiderID)
		service.streamStatus(ctx, &created, "")
	})

	notified := 0
	if service.events != nil {
		notified = service.events.Publish(ctx, dispatch.RideRequested{
			RideID:        r.ID,
			Party:         r.Party(),
			Pickup:        r.Pickup,
			Dropoff:       r.Dropoff,
			Fare:          r.Fare,
			DistanceMiles: r.DistanceMiles,
		})
	}

	service.logger.Info(ctx, "ride_requested", fmt.Sprintf("Ride %s requested", r.ID), map[string]any{
		"rider_id":            in.RiderID,
		"fare":                r.Fare,
		"distance_miles":      r.DistanceMiles,
		"candidates_notified": notified,
	})

	return ports.RequestRideResult{
		RideID:             r.ID,
		Status:             r.Status.String(),
		Quote:              quote,
		CandidatesNotified: notified,
	}, nil
}
