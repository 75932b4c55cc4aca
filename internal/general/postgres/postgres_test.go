package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

// testPool connects to DISPATCH_TEST_POSTGRES_DSN or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DISPATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DISPATCH_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dsn, 4, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))
	return pool
}

func newTestRide(t *testing.T, riderID string) *ride.Ride {
	t.Helper()
	r, err := ride.NewRide(uuid.NewString(), riderID,
		geo.Point{Latitude: 40.7128, Longitude: -74.0060, Address: "City Hall"},
		geo.Point{Latitude: 40.7580, Longitude: -73.9855},
		12.34, 3.51)
	require.NoError(t, err)
	return r
}

func TestRideStore_CreateGetUpdate(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewRideStore(pool)

	r := newTestRide(t, "rider-"+uuid.NewString())
	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusRequested, got.Status)
	assert.Equal(t, "City Hall", got.Pickup.Address)
	assert.InDelta(t, 12.34, got.Fare, 0.001)
	assert.Empty(t, got.DriverID)

	updated, err := store.Update(ctx, r.ID, func(cur *ride.Ride) error {
		tr, err := ride.Apply(*cur, ride.StatusAccepted, ride.Actor{UserID: "driver-1", Role: user.RoleDriver}, time.Now())
		if err != nil {
			return err
		}
		*cur = tr.Ride
		cur.PaymentIntentID = "pi_test"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "driver-1", updated.DriverID)

	got, err = store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusAccepted, got.Status)
	assert.Equal(t, "pi_test", got.PaymentIntentID)
	assert.NotNil(t, got.AcceptedAt)
}

func TestRideStore_MutationErrorRollsBack(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewRideStore(pool)

	r := newTestRide(t, "rider-"+uuid.NewString())
	require.NoError(t, store.Create(ctx, r))

	boom := errors.New("boom")
	_, err := store.Update(ctx, r.ID, func(cur *ride.Ride) error {
		cur.Status = ride.StatusCompleted
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusRequested, got.Status)

	_, err = store.Get(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, ride.ErrNotFound)
}

func TestRideStore_ListForUser(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewRideStore(pool)

	riderID := "rider-" + uuid.NewString()
	driverID := "driver-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older := newTestRide(t, riderID)
	older.CreatedAt = base.Add(-time.Hour)
	newer := newTestRide(t, riderID)
	newer.CreatedAt = base
	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	_, err := store.Update(ctx, older.ID, func(cur *ride.Ride) error {
		tr, err := ride.Cancel(*cur, ride.Actor{UserID: riderID, Role: user.RoleRider}, "changed plans", time.Now())
		if err != nil {
			return err
		}
		*cur = tr.Ride
		return nil
	})
	require.NoError(t, err)
	_, err = store.Update(ctx, newer.ID, func(cur *ride.Ride) error {
		tr, err := ride.Apply(*cur, ride.StatusAccepted, ride.Actor{UserID: driverID, Role: user.RoleDriver}, time.Now())
		if err != nil {
			return err
		}
		*cur = tr.Ride
		return nil
	})
	require.NoError(t, err)

	all, err := store.ListForUser(ctx, ports.RideQuery{UserID: riderID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)

	active, err := store.ListForUser(ctx, ports.RideQuery{UserID: riderID, ActiveOnly: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, newer.ID, active[0].ID)

	asDriver, err := store.ListForUser(ctx, ports.RideQuery{UserID: driverID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, asDriver, 1)
	assert.Equal(t, ride.StatusAccepted, asDriver[0].Status)

	limited, err := store.ListForUser(ctx, ports.RideQuery{UserID: riderID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newer.ID, limited[0].ID)
}

func TestRideStore_ConcurrentAcceptSingleWinner(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewRideStore(pool)

	r := newTestRide(t, "rider-"+uuid.NewString())
	require.NoError(t, store.Create(ctx, r))

	const drivers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := ride.Actor{UserID: uuid.NewString(), Role: user.RoleDriver}
			_, err := store.Update(ctx, r.ID, func(cur *ride.Ride) error {
				tr, err := ride.Apply(*cur, ride.StatusAccepted, actor, time.Now())
				if err != nil {
					return err
				}
				*cur = tr.Ride
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, ride.ErrRideNotAvailable) {
				losses++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, drivers-1, losses)
}

func TestRideEventLog_AppendAndList(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewRideStore(pool)
	events := NewRideEventLog(pool)

	r := newTestRide(t, "rider-"+uuid.NewString())
	require.NoError(t, store.Create(ctx, r))

	ev, err := ride.NewEvent(r.ID, r.RiderID, ride.EventRideRequested, map[string]any{"to": "REQUESTED"})
	require.NoError(t, err)
	require.NoError(t, events.Append(ctx, ev))
	assert.NotEmpty(t, ev.ID)

	list, err := events.ForRide(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ride.EventRideRequested, list[0].Type)
	assert.Equal(t, "REQUESTED", list[0].Data["to"])
}

func TestUserStore(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserStore(pool)

	driverID := "driver-" + uuid.NewString()
	require.NoError(t, users.UpsertUser(ctx, driverID, user.RoleDriver, "d@example.com", "+15550100"))

	account, err := users.ConnectedAccountID(ctx, driverID)
	require.NoError(t, err)
	assert.Empty(t, account)

	require.NoError(t, users.SetConnectedAccount(ctx, driverID, "acct_123"))
	account, err = users.ConnectedAccountID(ctx, driverID)
	require.NoError(t, err)
	assert.Equal(t, "acct_123", account)

	contact, err := users.Contact(ctx, driverID)
	require.NoError(t, err)
	assert.Equal(t, "+15550100", contact.Phone)

	_, err = users.Contact(ctx, "nobody-"+uuid.NewString())
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestRideMetrics_CountByStatusSince(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewRideStore(pool)

	since := time.Now().UTC().Add(-time.Second)
	before, err := NewRideMetrics(pool).CountByStatusSince(ctx, since)
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, newTestRide(t, "rider-"+uuid.NewString())))

	after, err := NewRideMetrics(pool).CountByStatusSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, before[ride.StatusRequested]+1, after[ride.StatusRequested])
}
