package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

// RideMetrics runs aggregate queries over rides for the admin board.
type RideMetrics struct {
	pool *pgxpool.Pool
}

func NewRideMetrics(pool *pgxpool.Pool) *RideMetrics {
	return &RideMetrics{pool: pool}
}

var _ ports.RideMetrics = (*RideMetrics)(nil)

// CountByStatusSince counts rides requested at or after since, grouped by status.
func (m *RideMetrics) CountByStatusSince(ctx context.Context, since time.Time) (map[ride.Status]int, error) {
	rows, err := conn(ctx, m.pool).Query(ctx, `
		SELECT status, COUNT(*)
		FROM rides
		WHERE requested_at >= $1
		GROUP BY status
	`, since)
	if err != nil {
		return nil, fmt.Errorf("count rides by status: %w", err)
	}
	defer rows.Close()

	out := make(map[ride.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan ride count: %w", err)
		}
		out[ride.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
