package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied by EnsureSchema. Every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		role       TEXT NOT NULL CHECK (role IN ('RIDER', 'DRIVER', 'ADMIN')),
		email      TEXT,
		phone      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS driver_profiles (
		driver_id         TEXT PRIMARY KEY REFERENCES users (id) ON DELETE CASCADE,
		stripe_account_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS rides (
		id                  TEXT PRIMARY KEY,
		rider_id            TEXT NOT NULL,
		driver_id           TEXT,
		status              TEXT NOT NULL,
		pickup_lat          DOUBLE PRECISION NOT NULL,
		pickup_lng          DOUBLE PRECISION NOT NULL,
		pickup_address      TEXT NOT NULL DEFAULT '',
		dropoff_lat         DOUBLE PRECISION NOT NULL,
		dropoff_lng         DOUBLE PRECISION NOT NULL,
		dropoff_address     TEXT NOT NULL DEFAULT '',
		fare                NUMERIC(10, 2) NOT NULL,
		distance_miles      NUMERIC(10, 2) NOT NULL,
		payment_intent_id   TEXT,
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL,
		requested_at        TIMESTAMPTZ NOT NULL,
		accepted_at         TIMESTAMPTZ,
		arrived_at          TIMESTAMPTZ,
		started_at          TIMESTAMPTZ,
		completed_at        TIMESTAMPTZ,
		cancelled_at        TIMESTAMPTZ,
		cancellation_reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS rides_rider_idx ON rides (rider_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS rides_driver_idx ON rides (driver_id, created_at DESC) WHERE driver_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS ride_events (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		ride_id    TEXT NOT NULL REFERENCES rides (id) ON DELETE CASCADE,
		actor_id   TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		event_data JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ride_events_ride_idx ON ride_events (ride_id, created_at)`,
}

// EnsureSchema creates the tables the dispatch service reads and writes.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
