package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/ports"
)

var (
	riderActor  = ride.Actor{UserID: "rider-1", Role: user.RoleRider}
	driverActor = ride.Actor{UserID: "driver-1", Role: user.RoleDriver}
	otherDriver = ride.Actor{UserID: "driver-2", Role: user.RoleDriver}

	downtown = geo.Point{Latitude: 40.0, Longitude: -74.0, Address: "1 Main St"}
	uptown   = geo.Point{Latitude: 41.0, Longitude: -74.0, Address: "99 North Ave"}
)

type fixture struct {
	svc      *rideService
	rides    *memoryRides
	payments *recordingPayments
	notifier *recordingNotifier
	events   *recordingEvents
	log      *recordingLog
	stream   *recordingStream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rides:    newMemoryRides(),
		payments: &recordingPayments{},
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		log:      &recordingLog{},
		stream:   &recordingStream{},
	}
	users := &memoryUsers{
		accounts: map[string]string{"driver-1": "acct_123"},
		contacts: map[string]user.Contact{
			"rider-1":  {UserID: "rider-1", Email: "rider@example.com", Phone: "+15550001"},
			"driver-1": {UserID: "driver-1", Phone: "+15550002"},
		},
	}
	f.svc = newRideService(Deps{
		Rides:        f.rides,
		Users:        users,
		EventLog:     f.log,
		Payments:     f.payments,
		Notifier:     f.notifier,
		StatusStream: f.stream,
		Events:       f.events,
	})
	return f
}

func (f *fixture) request(t *testing.T) string {
	t.Helper()
	res, err := f.svc.RequestRide(context.Background(), ports.RequestRideInput{
		RiderID: riderActor.UserID, Pickup: downtown, Dropoff: uptown,
	})
	require.NoError(t, err)
	return res.RideID
}

func (f *fixture) status(t *testing.T, rideID string, actor ride.Actor, s ride.Status) (ports.RideView, error) {
	t.Helper()
	return f.svc.UpdateStatus(context.Background(), ports.StatusInput{RideID: rideID, Actor: actor, Status: s})
}

func TestQuote(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.Quote(context.Background(), ports.QuoteInput{Pickup: downtown, Dropoff: uptown})
	require.NoError(t, err)
	// one degree of latitude is ~69.1 miles
	assert.InDelta(t, 69.10, q.DistanceMiles, 0.01)
	assert.Equal(t, 123.42, q.Fare)
	assert.Equal(t, 139, q.ETAMinutes)

	_, err = f.svc.Quote(context.Background(), ports.QuoteInput{Pickup: geo.Point{Latitude: 95}, Dropoff: uptown})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequestRide(t *testing.T) {
	f := newFixture(t)
	rideID := f.request(t)

	stored, err := f.rides.Get(context.Background(), rideID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusRequested, stored.Status)
	assert.Equal(t, 123.42, stored.Fare)

	events := f.events.all()
	require.Len(t, events, 1)
	requested, ok := events[0].(dispatch.RideRequested)
	require.True(t, ok)
	assert.Equal(t, rideID, requested.RideID)
	assert.Equal(t, "rider-1", requested.Party.RiderID)

	assert.Equal(t, []string{"REQUESTED"}, f.stream.statuses)
	require.Len(t, f.log.events, 1)
	assert.Equal(t, ride.EventRideRequested, f.log.events[0].Type)

	_, err = f.svc.RequestRide(context.Background(), ports.RequestRideInput{Pickup: downtown, Dropoff: uptown})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAccept_ExactlyOneOfManyWins(t *testing.T) {
	f := newFixture(t)
	rideID := f.request(t)

	const drivers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []string
		notAvail int
	)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := ride.Actor{UserID: fmt.Sprintf("driver-%d", i), Role: user.RoleDriver}
			_, err := f.svc.Accept(context.Background(), rideID, actor)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, actor.UserID)
			case errors.Is(err, ride.ErrRideNotAvailable):
				notAvail++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, drivers-1, notAvail)

	stored, err := f.rides.Get(context.Background(), rideID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], stored.DriverID)
	assert.Equal(t, ride.StatusAccepted, stored.Status)
}

func TestLifecycle_CapturesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	rideID := f.request(t)

	view, err := f.svc.Accept(context.Background(), rideID, driverActor)
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", view.Status)
	assert.Equal(t, "driver-1", view.DriverID)

	require.Len(t, f.payments.holds, 1)
	hold := f.payments.holds[0]
	assert.Equal(t, "acct_123", hold.DestinationAccount)
	assert.Equal(t, int64(12342), hold.AmountCents)
	assert.Equal(t, "usd", hold.Currency)

	for _, s := range []ride.Status{ride.StatusArrived, ride.StatusStarted, ride.StatusCompleted} {
		_, err := f.status(t, rideID, driverActor, s)
		require.NoError(t, err, s)
	}

	_, err = f.status(t, rideID, driverActor, ride.StatusCompleted)
	assert.ErrorIs(t, err, ride.ErrInvalidTransition)
	_, err = f.svc.Cancel(context.Background(), ports.StatusInput{RideID: rideID, Actor: riderActor})
	assert.ErrorIs(t, err, ride.ErrInvalidTransition)

	assert.Equal(t, []string{hold.PaymentIntentID}, f.payments.captures)
	assert.Empty(t, f.payments.voids)

	stored, _ := f.rides.Get(context.Background(), rideID)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, hold.PaymentIntentID, stored.PaymentIntentID)

	assert.Equal(t,
		[]string{TemplateRideConfirmation, TemplateRideUpdate, TemplateRideReceipt},
		f.notifier.templates())
	assert.Equal(t, []string{"REQUESTED", "ACCEPTED", "ARRIVED", "STARTED", "COMPLETED"}, f.stream.statuses)
}

func TestLifecycle_ProgressIsDriverOnly(t *testing.T) {
	f := newFixture(t)
	rideID := f.request(t)
	_, err := f.svc.Accept(context.Background(), rideID, driverActor)
	require.NoError(t, err)

	_, err = f.status(t, rideID, riderActor, ride.StatusArrived)
	assert.ErrorIs(t, err, ride.ErrForbidden)
	_, err = f.status(t, rideID, otherDriver, ride.StatusArrived)
	assert.ErrorIs(t, err, ride.ErrForbidden)
	_, err = f.status(t, rideID, driverActor, ride.StatusStarted)
	assert.ErrorIs(t, err, ride.ErrInvalidTransition)
	_, err = f.status(t, rideID, driverActor, ride.StatusRequested)
	assert.ErrorIs(t, err, ride.ErrInvalidTransition)
	_, err = f.status(t, rideID, driverActor, ride.Status("FLYING"))
	assert.ErrorIs(t, err, ErrValidation)

	stored, _ := f.rides.Get(context.Background(), rideID)
	assert.Equal(t, ride.StatusAccepted, stored.Status)
}

func TestCancel(t *testing.T) {
	t.Run("after accept voids the hold", func(t *testing.T) {
		f := newFixture(t)
		rideID := f.request(t)
		_, err := f.svc.Accept(context.Background(), rideID, driverActor)
		require.NoError(t, err)

		view, err := f.svc.Cancel(context.Background(), ports.StatusInput{RideID: rideID, Actor: riderActor, Reason: "late"})
		require.NoError(t, err)
		assert.Equal(t, "CANCELLED", view.Status)
		assert.Equal(t, "late", view.CancellationReason)

		require.Len(t, f.payments.voids, 1)
		assert.Equal(t, f.payments.holds[0].PaymentIntentID, f.payments.voids[0])
		assert.Empty(t, f.payments.captures)

		last := f.events.all()[len(f.events.all())-1]
		changed, ok := last.(dispatch.RideStatusChanged)
		require.True(t, ok)
		assert.Equal(t, ride.StatusCancelled, changed.Status)
		assert.Equal(t, "driver-1", changed.Party.DriverID)

		// the driver is told, not the rider who cancelled
		sent := f.notifier.sent[len(f.notifier.sent)-1]
		assert.Equal(t, "+15550002", sent.Recipient)
	})

	t.Run("before accept has nothing to void", func(t *testing.T) {
		f := newFixture(t)
		rideID := f.request(t)

		_, err := f.svc.Cancel(context.Background(), ports.StatusInput{RideID: rideID, Actor: riderActor})
		require.NoError(t, err)
		assert.Empty(t, f.payments.voids)
		assert.Empty(t, f.notifier.sent)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		f := newFixture(t)
		rideID := f.request(t)

		_, err := f.svc.Cancel(context.Background(), ports.StatusInput{RideID: rideID, Actor: otherDriver})
		assert.ErrorIs(t, err, ride.ErrForbidden)
	})

	t.Run("unknown ride", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Cancel(context.Background(), ports.StatusInput{RideID: "nope", Actor: riderActor})
		assert.ErrorIs(t, err, ride.ErrNotFound)
	})
}

func TestAccept_DriverWithoutAccountPlacesNoHold(t *testing.T) {
	f := newFixture(t)
	rideID := f.request(t)

	_, err := f.svc.Accept(context.Background(), rideID, otherDriver)
	require.NoError(t, err)
	for _, s := range []ride.Status{ride.StatusArrived, ride.StatusStarted, ride.StatusCompleted} {
		_, err := f.status(t, rideID, otherDriver, s)
		require.NoError(t, err)
	}

	assert.Empty(t, f.payments.holds)
	assert.Empty(t, f.payments.captures)
}

func TestPaymentFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.payments.fail = errors.New("broker unavailable")
	rideID := f.request(t)

	_, err := f.svc.Accept(context.Background(), rideID, driverActor)
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), ports.StatusInput{RideID: rideID, Actor: driverActor})
	require.NoError(t, err)

	stored, _ := f.rides.Get(context.Background(), rideID)
	assert.Equal(t, ride.StatusCancelled, stored.Status)
	assert.Len(t, f.payments.voids, 1)
}

func TestAccept_RiderIsForbidden(t *testing.T) {
	f := newFixture(t)
	rideID := f.request(t)

	_, err := f.svc.Accept(context.Background(), rideID, riderActor)
	assert.ErrorIs(t, err, ride.ErrForbidden)
	_, err = f.status(t, rideID, riderActor, ride.StatusAccepted)
	assert.ErrorIs(t, err, ride.ErrForbidden)
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	rideID := f.request(t)

	view, err := f.svc.Get(context.Background(), rideID, riderActor)
	require.NoError(t, err)
	assert.Equal(t, rideID, view.RideID)

	_, err = f.svc.Get(context.Background(), rideID, otherDriver)
	assert.ErrorIs(t, err, ride.ErrForbidden)

	_, err = f.svc.Get(context.Background(), "missing", riderActor)
	assert.ErrorIs(t, err, ride.ErrNotFound)
}

func TestEventsReachOnlyRideParty(t *testing.T) {
	reg := dispatch.NewRegistry()
	presence := dispatch.NewPresence()
	out := &countingDeliverer{}
	router := dispatch.NewRouter(reg, presence, dispatch.All(), out, nil)

	f := newFixture(t)
	f.svc.events = router

	reg.Connect("rider-1-phone", "rider-1", user.RoleRider)
	reg.Connect("rider-2-phone", "rider-2", user.RoleRider)
	reg.Connect("driver-1-phone", "driver-1", user.RoleDriver)
	reg.Connect("driver-2-phone", "driver-2", user.RoleDriver)
	_, _ = presence.GoOnline("driver-1", "driver-1-phone", 40, -74)
	_, _ = presence.GoOnline("driver-2", "driver-2-phone", 40, -74)

	rideID := f.request(t)
	assert.ElementsMatch(t, []dispatch.SessionHandle{"driver-1-phone", "driver-2-phone"}, out.take())

	_, err := f.svc.Accept(context.Background(), rideID, driverActor)
	require.NoError(t, err)
	assert.ElementsMatch(t, []dispatch.SessionHandle{"rider-1-phone", "driver-1-phone"}, out.take())

	_, err = f.status(t, rideID, driverActor, ride.StatusArrived)
	require.NoError(t, err)
	assert.ElementsMatch(t, []dispatch.SessionHandle{"rider-1-phone", "driver-1-phone"}, out.take())
}

func TestList_NewestFirstForEitherParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older := f.request(t)
	newer := f.request(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.rides.backdate(older, base)
	f.rides.backdate(newer, base.Add(time.Minute))

	_, err := f.svc.Accept(ctx, newer, driverActor)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, ports.StatusInput{RideID: older, Actor: riderActor})
	require.NoError(t, err)

	ids := func(views []ports.RideView) []string {
		out := make([]string, 0, len(views))
		for _, v := range views {
			out = append(out, v.RideID)
		}
		return out
	}

	views, err := f.svc.List(ctx, ports.ListRidesInput{Actor: riderActor})
	require.NoError(t, err)
	assert.Equal(t, []string{newer, older}, ids(views))

	views, err = f.svc.List(ctx, ports.ListRidesInput{Actor: riderActor, ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{newer}, ids(views))
	assert.Equal(t, "ACCEPTED", views[0].Status)

	views, err = f.svc.List(ctx, ports.ListRidesInput{Actor: driverActor})
	require.NoError(t, err)
	assert.Equal(t, []string{newer}, ids(views))

	views, err = f.svc.List(ctx, ports.ListRidesInput{Actor: otherDriver})
	require.NoError(t, err)
	assert.Empty(t, views)

	views, err = f.svc.List(ctx, ports.ListRidesInput{Actor: riderActor, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{newer}, ids(views))

	_, err = f.svc.List(ctx, ports.ListRidesInput{Actor: riderActor, Limit: -1})
	assert.ErrorIs(t, err, ErrValidation)
}
