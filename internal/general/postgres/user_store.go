package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/ports"
)

// UserStore reads user contact data and driver payout accounts.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore constructs a new UserStore.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

var _ ports.UserStore = (*UserStore)(nil)

// ConnectedAccountID returns the driver's payout account, or "" when the driver has
// no profile or has not connected one.
func (store *UserStore) ConnectedAccountID(ctx context.Context, driverID string) (string, error) {
	var account string
	err := conn(ctx, store.pool).QueryRow(ctx, `
		SELECT COALESCE(stripe_account_id, '')
		FROM driver_profiles
		WHERE driver_id = $1
	`, driverID).Scan(&account)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query driver profile: %w", err)
	}
	return account, nil
}

// Contact returns a user's email and phone.
func (store *UserStore) Contact(ctx context.Context, userID string) (user.Contact, error) {
	out := user.Contact{UserID: userID}
	err := conn(ctx, store.pool).QueryRow(ctx, `
		SELECT COALESCE(email, ''), COALESCE(phone, '')
		FROM users
		WHERE id = $1
	`, userID).Scan(&out.Email, &out.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.Contact{}, user.ErrNotFound
	}
	if err != nil {
		return user.Contact{}, fmt.Errorf("query user contact: %w", err)
	}
	return out, nil
}

// UpsertUser creates or updates a user row. Used by seeding and tests.
func (store *UserStore) UpsertUser(ctx context.Context, userID string, role user.Role, email, phone string) error {
	_, err := conn(ctx, store.pool).Exec(ctx, `
		INSERT INTO users (id, role, email, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, email = EXCLUDED.email, phone = EXCLUDED.phone
	`, userID, role.String(), nullable(email), nullable(phone))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// SetConnectedAccount records the payout account of a driver.
func (store *UserStore) SetConnectedAccount(ctx context.Context, driverID, accountID string) error {
	_, err := conn(ctx, store.pool).Exec(ctx, `
		INSERT INTO driver_profiles (driver_id, stripe_account_id)
		VALUES ($1, $2)
		ON CONFLICT (driver_id) DO UPDATE SET stripe_account_id = EXCLUDED.stripe_account_id
	`, driverID, nullable(accountID))
	if err != nil {
		return fmt.Errorf("upsert driver profile: %w", err)
	}
	return nil
}
