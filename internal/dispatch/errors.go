package dispatch

import "errors"

var (
	ErrNotFound           = errors.New("session not found")
	ErrNotOnline          = errors.New("driver is not online")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrDriverIDRequired   = errors.New("driver id is required")

	// ErrNotDriver is returned when a non-driver session, or a driver acting for
	// someone else, sends a driver message.
	ErrNotDriver = errors.New("session is not allowed to act for this driver")
)
