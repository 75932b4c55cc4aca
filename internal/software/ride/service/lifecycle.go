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

// Accept assigns the calling driver to a REQUESTED ride. Exactly one of several
// concurrent accepts succeeds; the rest get ride.ErrRideNotAvailable.
func (service *rideService) Accept(ctx context.Context, rideID string, actor ride.Actor) (ports.RideView, error) {
	if !actor.Role.IsDriver() {
		return ports.RideView{}, ride.ErrForbidden
	}

	// Looked up before taking the ride lock; the account does not depend on ride state.
	account := service.connectedAccount(ctx, actor.UserID)

	t, err := service.transition(ctx, rideID, actor, func(r ride.Ride) (ride.Transition, error) {
		t, err := ride.Apply(r, ride.StatusAccepted, actor, service.now())
		if err != nil {
			return t, err
		}
		if account != "" {
			t.Ride.PaymentIntentID = "pi_" + strings.ReplaceAll(service.newID(), "-", "")
		}
		return t, nil
	}, func(ctx context.Context, t ride.Transition) {
		if account != "" {
			service.placeHold(ctx, &t.Ride, account)
		}
		service.notifyAccepted(ctx, &t.Ride)
	})
	if err != nil {
		return ports.RideView{}, err
	}

	return ports.NewRideView(&t.Ride), nil
}

// UpdateStatus moves a ride along ARRIVED -> STARTED -> COMPLETED, or cancels it.
func (service *rideService) UpdateStatus(ctx context.Context, in ports.StatusInput) (ports.RideView, error) {
	switch in.Status {
	case ride.StatusAccepted:
		return service.Accept(ctx, in.RideID, in.Actor)
	case ride.StatusCancelled:
		return service.Cancel(ctx, in)
	case ride.StatusArrived, ride.StatusStarted, ride.StatusCompleted:
	default:
		if !in.Status.Valid() {
			return ports.RideView{}, validationError(ride.ErrInvalidStatus)
		}
		return ports.RideView{}, ride.ErrInvalidTransition
	}

	t, err := service.transition(ctx, in.RideID, in.Actor, func(r ride.Ride) (ride.Transition, error) {
		return ride.Apply(r, in.Status, in.Actor, service.now())
	}, func(ctx context.Context, t ride.Transition) {
		service.executeIntent(ctx, t)
		service.notifyProgress(ctx, t)
	})
	if err != nil {
		return ports.RideView{}, err
	}

	return ports.NewRideView(&t.Ride), nil
}

// Cancel cancels a non-terminal ride on behalf of its rider or assigned driver.
func (service *rideService) Cancel(ctx context.Context, in ports.StatusInput) (ports.RideView, error) {
	t, err := service.transition(ctx, in.RideID, in.Actor, func(r ride.Ride) (ride.Transition, error) {
		return ride.Cancel(r, in.Actor, in.Reason, service.now())
	}, func(ctx context.Context, t ride.Transition) {
		service.executeIntent(ctx, t)
		service.notifyCancelled(ctx, t, in.Actor.UserID)
	})
	if err != nil {
		return ports.RideView{}, err
	}

	return ports.NewRideView(&t.Ride), nil
}

// Get returns a ride to one of its parties.
func (service *rideService) Get(ctx context.Context, rideID string, actor ride.Actor) (ports.RideView, error) {
	r, err := service.rides.Get(ctx, strings.TrimSpace(rideID))
	if err != nil {
		return ports.RideView{}, err
	}
	if !r.Party().Has(actor.UserID) && !actor.Role.IsAdmin() {
		return ports.RideView{}, ride.ErrForbidden
	}
	return ports.NewRideView(r), nil
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// List returns the caller's rides, newest first. Clients use it after a reconnect
// to find rides still in flight.
func (service *rideService) List(ctx context.Context, in ports.ListRidesInput) ([]ports.RideView, error) {
	userID := strings.TrimSpace(in.Actor.UserID)
	if userID == "" {
		return nil, validationError(errors.New("user id is required"))
	}

	limit := in.Limit
	switch {
	case limit < 0:
		return nil, validationError(errors.New("limit must be >= 0"))
	case limit == 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	rides, err := service.rides.ListForUser(ctx, ports.RideQuery{UserID: userID, ActiveOnly: in.ActiveOnly, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}

	views := make([]ports.RideView, 0, len(rides))
	for _, r := range rides {
		views = append(views, ports.NewRideView(r))
	}
	return views, nil
}

// transition runs step against the stored ride while holding the ride's lock and
// publishes the resulting event before releasing it, so subscribers see a ride's
// events in commit order. The audit row, the status stream and then run as
// post-commit effects: queued under the lock to keep their order, or inline
// once the lock is released.
func (service *rideService) transition(
	ctx context.Context,
	rideID string,
	actor ride.Actor,
	step func(r ride.Ride) (ride.Transition, error),
	then func(ctx context.Context, t ride.Transition),
) (ride.Transition, error) {
	rideID = strings.TrimSpace(rideID)
	if rideID == "" {
		return ride.Transition{}, validationError(errors.New("ride id is required"))
	}
	ctx = service.logger.WithRideID(ctx, rideID)

	unlock := service.locks.Lock(rideID)
	t, err := service.commit(ctx, rideID, actor, step)
	if err != nil {
		unlock()
		return ride.Transition{}, err
	}
	if service.events != nil {
		service.events.Publish(ctx, dispatch.StatusEvent(t))
	}

	effects := func(ctx context.Context) {
		service.audit(ctx, t, actor.UserID)
		service.streamStatus(ctx, &t.Ride, t.From)
		if then != nil {
			then(ctx, t)
		}
	}
	if service.effects != nil {
		service.effects.submit(ctx, rideID, effects)
		unlock()
		return t, nil
	}
	unlock()
	effects(ctx)
	return t, nil
}

// commit applies step inside the store's row lock. The caller holds the ride lock.
func (service *rideService) commit(
	ctx context.Context,
	rideID string,
	actor ride.Actor,
	step func(r ride.Ride) (ride.Transition, error),
) (ride.Transition, error) {
	var t ride.Transition
	_, err := service.rides.Update(ctx, rideID, func(r *ride.Ride) error {
		next, err := step(*r)
		if err != nil {
			return err
		}
		*r = next.Ride
		t = next
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			service.logger.Error(ctx, "ride_transition_failed", "Failed to update ride", err, map[string]any{
				"actor_id": actor.UserID,
			})
			return ride.Transition{}, fmt.Errorf("update ride: %w", err)
		}
		service.logger.Info(ctx, "ride_transition_rejected", err.Error(), map[string]any{
			"actor_id": actor.UserID,
		})
		return ride.Transition{}, err
	}

	service.logger.Info(ctx, "ride_status_changed", fmt.Sprintf("Ride %s %s -> %s", t.Ride.ID, t.From, t.To), map[string]any{
		"actor_id":  actor.UserID,
		"driver_id": t.Ride.DriverID,
		"intent":    string(t.Intent),
	})
	return t, nil
}

func (service *rideService) connectedAccount(ctx context.Context, driverID string) string {
	if service.users == nil {
		return ""
	}
	account, err := service.users.ConnectedAccountID(ctx, driverID)
	if err != nil {
		service.logger.Error(ctx, "connected_account_lookup_failed", "Failed to load driver payment account", err, map[string]any{
			"driver_id": driverID,
		})
		return ""
	}
	return account
}

func isDomainError(err error) bool {
	return errors.Is(err, ride.ErrInvalidTransition) ||
		errors.Is(err, ride.ErrRideNotAvailable) ||
		errors.Is(err, ride.ErrForbidden) ||
		errors.Is(err, ride.ErrNotFound)
}
