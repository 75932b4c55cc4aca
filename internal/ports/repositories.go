package ports

import (
	"context"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RideMutation changes a loaded ride in place. Returning an error aborts the update.
type RideMutation func(r *ride.Ride) error

// RideQuery selects rides a user took part in, as rider or driver.
type RideQuery struct {
	UserID     string
	ActiveOnly bool // skip COMPLETED and CANCELLED
	Limit      int
}

// RideStore persists rides. Update runs mutate against the current row and stores
// the result atomically; a mutation error leaves the row unchanged.
type RideStore interface {
	Create(ctx context.Context, r *ride.Ride) error
	Get(ctx context.Context, id string) (*ride.Ride, error)
	Update(ctx context.Context, id string, mutate RideMutation) (*ride.Ride, error)
	// ListForUser returns matching rides, newest first.
	ListForUser(ctx context.Context, q RideQuery) ([]*ride.Ride, error)
}

// RideEventLog appends audit records of ride transitions.
type RideEventLog interface {
	Append(ctx context.Context, e *ride.Event) error
}

// UserStore resolves user data the core needs but does not own.
type UserStore interface {
	// ConnectedAccountID returns the driver's payment account, or "" if none is set up.
	ConnectedAccountID(ctx context.Context, driverID string) (string, error)
	Contact(ctx context.Context, userID string) (user.Contact, error)
}
