package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

// RideEventLog persists ride audit events using pgx and plain SQL.
type RideEventLog struct {
	pool *pgxpool.Pool
}

// NewRideEventLog constructs a new RideEventLog.
func NewRideEventLog(pool *pgxpool.Pool) *RideEventLog {
	return &RideEventLog{pool: pool}
}

var _ ports.RideEventLog = (*RideEventLog)(nil)

// Append inserts a new ride_events row and fills in its id and timestamp.
func (log *RideEventLog) Append(ctx context.Context, event *ride.Event) error {
	if !event.Type.Valid() {
		return ride.ErrInvalidEventType
	}

	data, err := event.DataJSON()
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	err = conn(ctx, log.pool).QueryRow(ctx, `
		INSERT INTO ride_events (ride_id, actor_id, event_type, event_data)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING id, created_at
	`,
		event.RideID,
		event.ActorID,
		event.Type.String(),
		string(data),
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ride event: %w", err)
	}
	return nil
}

// ForRide returns a ride's audit trail in insertion order.
func (log *RideEventLog) ForRide(ctx context.Context, rideID string) ([]*ride.Event, error) {
	rows, err := conn(ctx, log.pool).Query(ctx, `
		SELECT id, ride_id, actor_id, event_type, event_data, created_at
		FROM ride_events
		WHERE ride_id = $1
		ORDER BY created_at, id
	`, rideID)
	if err != nil {
		return nil, fmt.Errorf("query ride events: %w", err)
	}
	defer rows.Close()

	var events []*ride.Event
	for rows.Next() {
		var (
			ev        ride.Event
			eventType string
		)
		if err := rows.Scan(&ev.ID, &ev.RideID, &ev.ActorID, &eventType, &ev.Data, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ride event: %w", err)
		}
		ev.Type = ride.EventType(eventType)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}
