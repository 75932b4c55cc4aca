package dispatch

import (
	"context"
	"strings"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/logger"
)

// Dispatcher is the entry point for socket-originated operations. It keeps the
// registry, the presence tracker and the router consistent with each other.
type Dispatcher struct {
	Registry *Registry
	Presence *Presence
	Router   *Router
	log      *logger.Logger
}

func NewDispatcher(registry *Registry, presence *Presence, router *Router, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{Registry: registry, Presence: presence, Router: router, log: log}
}

// Connect registers an authenticated session.
func (d *Dispatcher) Connect(ctx context.Context, handle SessionHandle, userID string, role user.Role) Connection {
	conn := d.Registry.Connect(handle, userID, role)
	d.log.Info(ctx, "session_connected", "session registered", map[string]any{
		"session": handle.String(), "user_id": userID, "role": role.String(),
	})
	return conn
}

// Disconnect removes a session. When it was the last session of an online driver
// bound to it, the driver goes offline.
func (d *Dispatcher) Disconnect(ctx context.Context, handle SessionHandle) {
	conn, ok := d.Registry.Disconnect(handle)
	if !ok {
		return
	}
	d.log.Info(ctx, "session_disconnected", "session removed", map[string]any{
		"session": handle.String(), "user_id": conn.UserID,
	})

	if !conn.Role.IsDriver() {
		return
	}
	// Checked under the presence lock: a session that connects and goes online
	// while this one closes must not be taken offline.
	stillConnected := func(DriverPresence) bool { return d.Registry.Connected(conn.UserID) }
	if d.Presence.GoOfflineIf(conn.UserID, stillConnected) {
		d.log.Info(ctx, "driver_offline", "driver went offline on disconnect", map[string]any{"driver_id": conn.UserID})
	}
}

// GoOnline marks the driver behind handle as available at (lat, lon).
func (d *Dispatcher) GoOnline(ctx context.Context, handle SessionHandle, driverID string, lat, lon float64) (DriverPresence, error) {
	if err := d.authorizeDriver(handle, driverID); err != nil {
		return DriverPresence{}, err
	}

	p, err := d.Presence.GoOnline(driverID, handle, lat, lon)
	if err != nil {
		return DriverPresence{}, err
	}
	d.log.Info(ctx, "driver_online", "driver is available", map[string]any{"driver_id": driverID})
	d.Router.Publish(ctx, DriverPresenceChanged{DriverID: driverID, Online: true})
	return p, nil
}

// GoOffline withdraws the driver behind handle from dispatch. Going offline twice is
// not an error.
func (d *Dispatcher) GoOffline(ctx context.Context, handle SessionHandle, driverID string) error {
	if err := d.authorizeDriver(handle, driverID); err != nil {
		return err
	}

	if d.Presence.GoOffline(driverID) {
		d.log.Info(ctx, "driver_offline", "driver is no longer available", map[string]any{"driver_id": driverID})
	}
	d.Router.Publish(ctx, DriverPresenceChanged{DriverID: driverID, Online: false})
	return nil
}

// UpdateLocation records a new position and forwards it to riders of the driver's
// in-progress rides.
func (d *Dispatcher) UpdateLocation(ctx context.Context, handle SessionHandle, driverID string, lat, lon float64) (DriverPresence, error) {
	if err := d.authorizeDriver(handle, driverID); err != nil {
		return DriverPresence{}, err
	}

	p, err := d.Presence.UpdateLocation(driverID, lat, lon)
	if err != nil {
		return DriverPresence{}, err
	}
	d.Router.Publish(ctx, DriverLocationChanged{
		DriverID:  driverID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		At:        p.LastUpdatedAt,
	})
	return p, nil
}

func (d *Dispatcher) authorizeDriver(handle SessionHandle, driverID string) error {
	if strings.TrimSpace(driverID) == "" {
		return ErrDriverIDRequired
	}
	conn, err := d.Registry.Lookup(handle)
	if err != nil {
		return err
	}
	if !conn.Role.IsDriver() || conn.UserID != driverID {
		return ErrNotDriver
	}
	return nil
}
