package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

const rideColumns = `
	id, rider_id, driver_id, status,
	pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address,
	fare, distance_miles, payment_intent_id,
	created_at, updated_at, requested_at, accepted_at, arrived_at,
	started_at, completed_at, cancelled_at, cancellation_reason`

// RideStore persists rides using pgx and plain SQL.
type RideStore struct {
	pool *pgxpool.Pool
	uow  ports.UnitOfWork
}

// NewRideStore constructs a RideStore over pool.
func NewRideStore(pool *pgxpool.Pool) *RideStore {
	return &RideStore{pool: pool, uow: NewUnitOfWork(pool)}
}

var _ ports.RideStore = (*RideStore)(nil)

// Create inserts a new ride row.
func (store *RideStore) Create(ctx context.Context, r *ride.Ride) error {
	_, err := conn(ctx, store.pool).Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`, rideArgs(r)...)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

// Get fetches a ride by id.
func (store *RideStore) Get(ctx context.Context, id string) (*ride.Ride, error) {
	row := conn(ctx, store.pool).QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	return scanRide(row)
}

// ListForUser returns rides where q.UserID is the rider or the driver, newest first.
func (store *RideStore) ListForUser(ctx context.Context, q ports.RideQuery) ([]*ride.Ride, error) {
	rows, err := conn(ctx, store.pool).Query(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE (rider_id = $1 OR driver_id = $1)
		  AND (NOT $2::boolean OR status NOT IN ('COMPLETED', 'CANCELLED'))
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, q.UserID, q.ActiveOnly, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	defer rows.Close()

	var out []*ride.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Update locks the ride row, applies mutate and writes the result back in the same
// transaction. A mutation error rolls back and is returned unwrapped.
func (store *RideStore) Update(ctx context.Context, id string, mutate ports.RideMutation) (*ride.Ride, error) {
	var out *ride.Ride
	err := store.uow.WithinTx(ctx, func(ctx context.Context) error {
		tx, _ := TxFromContext(ctx)

		current, err := scanRide(tx.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if err := mutate(current); err != nil {
			return err
		}
		current.ID = id

		args := rideArgs(current)
		if _, err := tx.Exec(ctx, `
			UPDATE rides SET
				rider_id = $2, driver_id = $3, status = $4,
				pickup_lat = $5, pickup_lng = $6, pickup_address = $7,
				dropoff_lat = $8, dropoff_lng = $9, dropoff_address = $10,
				fare = $11, distance_miles = $12, payment_intent_id = $13,
				created_at = $14, updated_at = $15, requested_at = $16, accepted_at = $17,
				arrived_at = $18, started_at = $19, completed_at = $20, cancelled_at = $21,
				cancellation_reason = $22
			WHERE id = $1
		`, args...); err != nil {
			return fmt.Errorf("update ride: %w", err)
		}

		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func rideArgs(r *ride.Ride) []any {
	return []any{
		r.ID, r.RiderID, nullable(r.DriverID), r.Status.String(),
		r.Pickup.Latitude, r.Pickup.Longitude, r.Pickup.Address,
		r.Dropoff.Latitude, r.Dropoff.Longitude, r.Dropoff.Address,
		r.Fare, r.DistanceMiles, nullable(r.PaymentIntentID),
		r.CreatedAt, r.UpdatedAt, r.RequestedAt, r.AcceptedAt, r.ArrivedAt,
		r.StartedAt, r.CompletedAt, r.CancelledAt, r.CancellationReason,
	}
}

func scanRide(row pgx.Row) (*ride.Ride, error) {
	var (
		out      ride.Ride
		driverID *string
		intentID *string
		status   string
	)
	err := row.Scan(
		&out.ID, &out.RiderID, &driverID, &status,
		&out.Pickup.Latitude, &out.Pickup.Longitude, &out.Pickup.Address,
		&out.Dropoff.Latitude, &out.Dropoff.Longitude, &out.Dropoff.Address,
		&out.Fare, &out.DistanceMiles, &intentID,
		&out.CreatedAt, &out.UpdatedAt, &out.RequestedAt, &out.AcceptedAt, &out.ArrivedAt,
		&out.StartedAt, &out.CompletedAt, &out.CancelledAt, &out.CancellationReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ride.ErrNotFound
		}
		return nil, fmt.Errorf("scan ride: %w", err)
	}

	out.Status = ride.Status(status)
	if driverID != nil {
		out.DriverID = *driverID
	}
	if intentID != nil {
		out.PaymentIntentID = *intentID
	}
	return &out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
