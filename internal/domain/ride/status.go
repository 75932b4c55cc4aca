package ride

import (
	"errors"
	"strings"
)

// Status is a ride status as stored in the `rides.status` column.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusAccepted  Status = "ACCEPTED"
	StatusArrived   Status = "ARRIVED"
	StatusStarted   Status = "STARTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid ride status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed ride status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusRequested, StatusAccepted, StatusArrived, StatusStarted, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo reports whether next is an edge of the ride lifecycle graph.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusRequested:
		return next == StatusAccepted || next == StatusCancelled

	case StatusAccepted:
		return next == StatusArrived || next == StatusCancelled

	case StatusArrived:
		return next == StatusStarted || next == StatusCancelled

	case StatusStarted:
		return next == StatusCompleted || next == StatusCancelled

	case StatusCompleted, StatusCancelled:
		return false

	default:
		return false
	}
}

// Terminal indicates if the status is in a terminal/completed state.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled
}

// InProgress reports whether a driver is assigned and the ride is not finished.
// Location updates of the assigned driver are forwarded to the rider only in these states.
func (status Status) InProgress() bool {
	return status == StatusAccepted || status == StatusArrived || status == StatusStarted
}
