package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
)

type routerFixture struct {
	reg      *Registry
	presence *Presence
	out      *recordingDeliverer
	router   *Router
}

func newRouterFixture(t *testing.T, selector CandidateSelector) *routerFixture {
	t.Helper()
	f := &routerFixture{
		reg:      NewRegistry(),
		presence: NewPresence(),
		out:      newRecordingDeliverer(),
	}
	f.router = NewRouter(f.reg, f.presence, selector, f.out, nil)
	return f
}

func (f *routerFixture) onlineDriver(t *testing.T, id string, handles ...SessionHandle) {
	t.Helper()
	for _, h := range handles {
		f.reg.Connect(h, id, user.RoleDriver)
	}
	_, err := f.presence.GoOnline(id, handles[0], 40.7, -74.0)
	require.NoError(t, err)
}

func TestRouter_RideRequestedReachesOnlineDriversOnly(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.onlineDriver(t, "d1", "d1-phone", "d1-tablet")
	f.onlineDriver(t, "d2", "d2-phone")
	f.reg.Connect("d3-phone", "d3", user.RoleDriver) // connected but not online
	f.reg.Connect("r1-phone", "r1", user.RoleRider)

	n := f.router.Publish(context.Background(), RideRequested{
		RideID: "ride-1",
		Party:  ride.Party{RiderID: "r1"},
		Pickup: geo.Point{Latitude: 40.7, Longitude: -74.0},
		Fare:   12.5,
	})

	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []SessionHandle{"d1-phone", "d1-tablet", "d2-phone"}, f.out.handles(contracts.WSRideRequest))

	payload := f.out.messages("d2-phone")[0].Data.(contracts.WSRideRequestPayload)
	assert.Equal(t, "ride-1", payload.RideID)
	assert.Equal(t, 12.5, payload.Fare)
}

func TestRouter_RideRequestedHonoursSelector(t *testing.T) {
	only := SelectorFunc(func(_ CandidateRequest, _ []DriverPresence) []string { return []string{"d2"} })
	f := newRouterFixture(t, only)
	f.onlineDriver(t, "d1", "h1")
	f.onlineDriver(t, "d2", "h2")

	n := f.router.Publish(context.Background(), RideRequested{RideID: "ride-1", Party: ride.Party{RiderID: "r1"}})
	assert.Equal(t, 1, n)
	assert.Equal(t, []SessionHandle{"h2"}, f.out.handles(contracts.WSRideRequest))
}

func TestRouter_StatusUpdatesGoToPartyOnly(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.reg.Connect("r1", "rider-1", user.RoleRider)
	f.reg.Connect("r2", "rider-2", user.RoleRider)
	f.reg.Connect("d1", "driver-1", user.RoleDriver)
	f.reg.Connect("d2", "driver-2", user.RoleDriver)

	party := ride.Party{RiderID: "rider-1", DriverID: "driver-1"}
	n := f.router.Publish(context.Background(), RideAccepted{RideID: "ride-1", Party: party})
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []SessionHandle{"r1", "d1"}, f.out.handles(contracts.WSRideStatusUpdate))

	f.out.reset()
	n = f.router.Publish(context.Background(), RideStatusChanged{
		RideID: "ride-1", Party: party, Previous: ride.StatusAccepted, Status: ride.StatusArrived,
	})
	assert.Equal(t, 2, n)
	msg := f.out.messages("r1")[0]
	assert.Equal(t, contracts.WSRideStatusUpdate, msg.Type)
	assert.Equal(t, "ARRIVED", msg.Data.(contracts.WSRideStatusPayload).Status)
	assert.Empty(t, f.out.messages("r2"))
	assert.Empty(t, f.out.messages("d2"))
}

func TestRouter_CancelledRequestedRideReachesRiderOnly(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.reg.Connect("r1", "rider-1", user.RoleRider)
	f.reg.Connect("d1", "driver-1", user.RoleDriver)

	n := f.router.Publish(context.Background(), RideStatusChanged{
		RideID: "ride-1", Party: ride.Party{RiderID: "rider-1"}, Previous: ride.StatusRequested, Status: ride.StatusCancelled,
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, []SessionHandle{"r1"}, f.out.handles(contracts.WSRideStatusUpdate))
}

func TestRouter_DriverLocationFollowsActiveRides(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.reg.Connect("r1", "rider-1", user.RoleRider)
	f.reg.Connect("r2", "rider-2", user.RoleRider)
	f.reg.Connect("d1", "driver-1", user.RoleDriver)
	ctx := context.Background()

	moved := DriverLocationChanged{DriverID: "driver-1", Latitude: 1, Longitude: 2}

	// No active ride: nobody hears about it.
	assert.Zero(t, f.router.Publish(ctx, moved))

	party := ride.Party{RiderID: "rider-1", DriverID: "driver-1"}
	f.router.Publish(ctx, RideAccepted{RideID: "ride-1", Party: party})
	f.out.reset()

	assert.Equal(t, 1, f.router.Publish(ctx, moved))
	got := f.out.messages("r1")
	require.Len(t, got, 1)
	payload := got[0].Data.(contracts.WSDriverLocationPayload)
	assert.Equal(t, "ride-1", payload.RideID)
	assert.Equal(t, 1.0, payload.Latitude)
	assert.Empty(t, f.out.messages("r2"))
	assert.Empty(t, f.out.messages("d1"))

	for _, s := range []ride.Status{ride.StatusArrived, ride.StatusStarted} {
		f.router.Publish(ctx, RideStatusChanged{RideID: "ride-1", Party: party, Status: s})
		f.out.reset()
		assert.Equal(t, 1, f.router.Publish(ctx, moved), s)
	}

	f.router.Publish(ctx, RideStatusChanged{RideID: "ride-1", Party: party, Status: ride.StatusCompleted})
	f.out.reset()
	assert.Zero(t, f.router.Publish(ctx, moved))
	assert.Empty(t, f.router.ActiveRides("driver-1"))
}

func TestRouter_FullQueueIsSkipped(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.onlineDriver(t, "d1", "slow", "fast")
	f.out.markFull("slow")

	n := f.router.Publish(context.Background(), RideRequested{RideID: "ride-1", Party: ride.Party{RiderID: "r1"}})
	assert.Equal(t, 1, n)
	assert.Equal(t, []SessionHandle{"fast"}, f.out.handles(contracts.WSRideRequest))
}

func TestRouter_DriverPresenceChanged(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.reg.Connect("d1", "driver-1", user.RoleDriver)
	f.reg.Connect("d2", "driver-2", user.RoleDriver)

	n := f.router.Publish(context.Background(), DriverPresenceChanged{DriverID: "driver-1", Online: true})
	assert.Equal(t, 1, n)
	msg := f.out.messages("d1")[0]
	assert.Equal(t, contracts.WSDriverStatus, msg.Type)
	assert.Equal(t, "online", msg.Data.(contracts.WSDriverStatusPayload).Status)
}

func TestStatusEvent(t *testing.T) {
	r := ride.Ride{ID: "ride-1", RiderID: "r", DriverID: "d"}

	ev := StatusEvent(ride.Transition{From: ride.StatusRequested, To: ride.StatusAccepted, Ride: r})
	assert.IsType(t, RideAccepted{}, ev)

	ev = StatusEvent(ride.Transition{From: ride.StatusStarted, To: ride.StatusCompleted, Ride: r})
	changed, ok := ev.(RideStatusChanged)
	require.True(t, ok)
	assert.Equal(t, ride.StatusStarted, changed.Previous)
	assert.Equal(t, "d", changed.Party.DriverID)
}
