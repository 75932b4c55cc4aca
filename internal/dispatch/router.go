package dispatch

import (
	"context"
	"sync"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
)

// Deliverer hands a message to a live session without blocking. It returns false
// when the session is gone or its outbound queue is full.
type Deliverer interface {
	Deliver(handle SessionHandle, msg contracts.WSOutbound) bool
}

// Router resolves the recipients of a domain event and enqueues the matching
// socket message on each of their sessions.
type Router struct {
	registry  *Registry
	presence  *Presence
	selector  CandidateSelector
	deliverer Deliverer
	log       *logger.Logger

	// driver id -> ride id -> rider id, for rides the driver is currently serving.
	activeMu sync.RWMutex
	active   map[string]map[string]string
}

func NewRouter(registry *Registry, presence *Presence, selector CandidateSelector, deliverer Deliverer, log *logger.Logger) *Router {
	if selector == nil {
		selector = All()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Router{
		registry:  registry,
		presence:  presence,
		selector:  selector,
		deliverer: deliverer,
		log:       log,
		active:    make(map[string]map[string]string),
	}
}

// Publish delivers e and returns how many sessions accepted the message.
// Missing sessions and full queues are skipped silently.
func (r *Router) Publish(ctx context.Context, e Event) int {
	var delivered int

	switch ev := e.(type) {
	case RideRequested:
		online := r.presence.OnlineDrivers()
		candidates := r.selector.SelectCandidates(CandidateRequest{RideID: ev.RideID, Pickup: ev.Pickup}, online)
		msg := contracts.WSOutbound{Type: contracts.WSRideRequest, Data: contracts.WSRideRequestPayload{
			RideID:        ev.RideID,
			Pickup:        toGeoPoint(ev.Pickup.Latitude, ev.Pickup.Longitude, ev.Pickup.Address),
			Dropoff:       toGeoPoint(ev.Dropoff.Latitude, ev.Dropoff.Longitude, ev.Dropoff.Address),
			Fare:          ev.Fare,
			DistanceMiles: ev.DistanceMiles,
		}}
		delivered = r.sendToUsers(msg, candidates...)

	case RideAccepted:
		r.track(ev.RideID, ev.Party, ride.StatusAccepted)
		msg := contracts.WSOutbound{Type: contracts.WSRideStatusUpdate, Data: contracts.WSRideStatusPayload{
			RideID:   ev.RideID,
			Status:   ride.StatusAccepted.String(),
			DriverID: ev.Party.DriverID,
		}}
		delivered = r.sendToUsers(msg, partyMembers(ev.Party)...)

	case RideStatusChanged:
		r.track(ev.RideID, ev.Party, ev.Status)
		msg := contracts.WSOutbound{Type: contracts.WSRideStatusUpdate, Data: contracts.WSRideStatusPayload{
			RideID:   ev.RideID,
			Status:   ev.Status.String(),
			DriverID: ev.Party.DriverID,
		}}
		delivered = r.sendToUsers(msg, partyMembers(ev.Party)...)

	case DriverLocationChanged:
		for rideID, riderID := range r.ridesServedBy(ev.DriverID) {
			msg := contracts.WSOutbound{Type: contracts.WSDriverLocation, Data: contracts.WSDriverLocationPayload{
				RideID:    rideID,
				DriverID:  ev.DriverID,
				Latitude:  ev.Latitude,
				Longitude: ev.Longitude,
			}}
			delivered += r.sendToUsers(msg, riderID)
		}

	case DriverPresenceChanged:
		status := "offline"
		if ev.Online {
			status = "online"
		}
		msg := contracts.WSOutbound{Type: contracts.WSDriverStatus, Data: contracts.WSDriverStatusPayload{Status: status}}
		delivered = r.sendToUsers(msg, ev.DriverID)

	default:
		r.log.Error(ctx, "router_unknown_event", "dropping event of unknown type", nil, map[string]any{"event": EventName(e)})
		return 0
	}

	r.log.Debug(ctx, "event_routed", "event delivered", map[string]any{
		"event":     EventName(e),
		"delivered": delivered,
	})
	return delivered
}

// ActiveRides returns the rides driverID is currently serving, keyed by ride id
// with the rider id as value.
func (r *Router) ActiveRides(driverID string) map[string]string {
	return r.ridesServedBy(driverID)
}

func (r *Router) sendToUsers(msg contracts.WSOutbound, userIDs ...string) int {
	var n int
	for _, id := range userIDs {
		for _, h := range r.registry.SessionsFor(id) {
			if r.deliverer.Deliver(h, msg) {
				n++
			}
		}
	}
	return n
}

// track keeps the active-ride index in step with the ride-scoped events that pass
// through the router.
func (r *Router) track(rideID string, party ride.Party, status ride.Status) {
	if party.DriverID == "" {
		return
	}

	r.activeMu.Lock()
	defer r.activeMu.Unlock()

	if status.InProgress() {
		rides, ok := r.active[party.DriverID]
		if !ok {
			rides = make(map[string]string, 1)
			r.active[party.DriverID] = rides
		}
		rides[rideID] = party.RiderID
		return
	}

	if rides, ok := r.active[party.DriverID]; ok {
		delete(rides, rideID)
		if len(rides) == 0 {
			delete(r.active, party.DriverID)
		}
	}
}

func (r *Router) ridesServedBy(driverID string) map[string]string {
	r.activeMu.RLock()
	defer r.activeMu.RUnlock()

	rides := r.active[driverID]
	out := make(map[string]string, len(rides))
	for rideID, riderID := range rides {
		out[rideID] = riderID
	}
	return out
}

func partyMembers(p ride.Party) []string {
	if p.DriverID == "" || p.DriverID == p.RiderID {
		return []string{p.RiderID}
	}
	return []string{p.RiderID, p.DriverID}
}

func toGeoPoint(lat, lon float64, address string) contracts.GeoPoint {
	return contracts.GeoPoint{Latitude: lat, Longitude: lon, Address: address}
}
