package ride

import (
	"errors"
	"strings"
	"time"

	"ride-dispatch/internal/domain/user"
)

var (
	ErrInvalidTransition = errors.New("invalid ride status transition")
	ErrRideNotAvailable  = errors.New("ride is not available for acceptance")
	ErrForbidden         = errors.New("actor is not allowed to perform this transition")
)

// Intent is a payment side effect requested by a transition. The state machine only
// emits it; executing it against the payment gateway is the caller's job.
type Intent string

const (
	IntentNone           Intent = ""
	IntentCapturePayment Intent = "CAPTURE_PAYMENT"
	IntentVoidPayment    Intent = "VOID_PAYMENT"
)

// Actor identifies who requests a transition.
type Actor struct {
	UserID string
	Role   user.Role
}

// Transition is the outcome of a successful Apply.
type Transition struct {
	From   Status
	To     Status
	Ride   Ride
	Intent Intent
}

// Apply validates moving ride to next on behalf of actor and returns the resulting
// state. The input ride is not modified.
//
//	REQUESTED -> ACCEPTED   any driver, no driver assigned yet
//	ACCEPTED  -> ARRIVED    assigned driver
//	ARRIVED   -> STARTED    assigned driver
//	STARTED   -> COMPLETED  assigned driver, emits IntentCapturePayment
//	non-terminal -> CANCELLED  rider or assigned driver, emits IntentVoidPayment
func Apply(current Ride, next Status, actor Actor, now time.Time) (Transition, error) {
	now = now.UTC()

	switch next {
	case StatusAccepted:
		return accept(current, actor, now)
	case StatusCancelled:
		return cancel(current, actor, now, "")
	case StatusArrived, StatusStarted, StatusCompleted:
		return progress(current, next, actor, now)
	default:
		return Transition{}, ErrInvalidTransition
	}
}

// Cancel is Apply(current, StatusCancelled, ...) with a recorded reason.
func Cancel(current Ride, actor Actor, reason string, now time.Time) (Transition, error) {
	return cancel(current, actor, now.UTC(), reason)
}

func accept(current Ride, actor Actor, now time.Time) (Transition, error) {
	if !actor.Role.IsDriver() || strings.TrimSpace(actor.UserID) == "" {
		return Transition{}, ErrForbidden
	}
	if current.Status != StatusRequested || current.DriverID != "" {
		return Transition{}, ErrRideNotAvailable
	}

	next := current
	next.DriverID = actor.UserID
	next.AcceptedAt = &now
	next.Status = StatusAccepted
	next.UpdatedAt = now

	return Transition{From: current.Status, To: StatusAccepted, Ride: next}, nil
}

func progress(current Ride, to Status, actor Actor, now time.Time) (Transition, error) {
	if !current.Status.CanTransitionTo(to) {
		return Transition{}, ErrInvalidTransition
	}
	if current.DriverID == "" || actor.UserID != current.DriverID {
		return Transition{}, ErrForbidden
	}

	next := current
	intent := IntentNone
	switch to {
	case StatusArrived:
		next.ArrivedAt = &now
	case StatusStarted:
		next.StartedAt = &now
	case StatusCompleted:
		next.CompletedAt = &now
		intent = IntentCapturePayment
	}
	next.Status = to
	next.UpdatedAt = now

	return Transition{From: current.Status, To: to, Ride: next, Intent: intent}, nil
}

func cancel(current Ride, actor Actor, now time.Time, reason string) (Transition, error) {
	if !current.Status.CanTransitionTo(StatusCancelled) {
		return Transition{}, ErrInvalidTransition
	}
	if !current.Party().Has(actor.UserID) {
		return Transition{}, ErrForbidden
	}

	next := current
	next.CancelledAt = &now
	next.CancellationReason = strings.TrimSpace(reason)
	next.Status = StatusCancelled
	next.UpdatedAt = now

	return Transition{From: current.Status, To: StatusCancelled, Ride: next, Intent: IntentVoidPayment}, nil
}
