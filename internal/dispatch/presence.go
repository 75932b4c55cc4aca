package dispatch

import (
	"strings"
	"sync"
	"time"

	"ride-dispatch/internal/domain/geo"
)

// DriverPresence is the last known state of an online driver.
type DriverPresence struct {
	DriverID      string
	Handle        SessionHandle
	Latitude      float64
	Longitude     float64
	LastUpdatedAt time.Time
}

// Point returns the driver's last known coordinates.
func (p DriverPresence) Point() geo.Point {
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude}
}

// PresenceObserver is told about every committed presence change. It is called
// while the driver's entry is locked, so implementations must not block or call
// back into the tracker.
type PresenceObserver interface {
	DriverOnline(p DriverPresence)
	DriverMoved(p DriverPresence)
	DriverOffline(driverID string)
}

type presenceEntry struct {
	mu    sync.Mutex
	state DriverPresence
}

// Presence tracks which drivers are reachable for dispatch and where they are.
//
// The map is guarded by mu. Each entry has its own lock, so location updates for
// different drivers only share the read lock and proceed in parallel.
type Presence struct {
	mu       sync.RWMutex
	drivers  map[string]*presenceEntry
	observer PresenceObserver
	now      func() time.Time
}

type PresenceOption func(*Presence)

// WithObserver registers o to receive presence changes.
func WithObserver(o PresenceObserver) PresenceOption {
	return func(p *Presence) { p.observer = o }
}

// WithClock overrides the time source used for LastUpdatedAt.
func WithClock(now func() time.Time) PresenceOption {
	return func(p *Presence) { p.now = now }
}

func NewPresence(opts ...PresenceOption) *Presence {
	p := &Presence{
		drivers: make(map[string]*presenceEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func validCoordinates(lat, lon float64) error {
	if err := geo.ValidateLatLon(lat, lon); err != nil {
		return ErrInvalidCoordinates
	}
	return nil
}

// GoOnline creates or replaces the presence of driverID.
func (p *Presence) GoOnline(driverID string, handle SessionHandle, lat, lon float64) (DriverPresence, error) {
	if strings.TrimSpace(driverID) == "" {
		return DriverPresence{}, ErrDriverIDRequired
	}
	if err := validCoordinates(lat, lon); err != nil {
		return DriverPresence{}, err
	}

	entry := &presenceEntry{state: DriverPresence{
		DriverID:      driverID,
		Handle:        handle,
		Latitude:      lat,
		Longitude:     lon,
		LastUpdatedAt: p.now().UTC(),
	}}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.drivers[driverID] = entry
	if p.observer != nil {
		p.observer.DriverOnline(entry.state)
	}
	return entry.state, nil
}

// GoOffline removes driverID. It reports whether the driver was online.
func (p *Presence) GoOffline(driverID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.drivers[driverID]; !ok {
		return false
	}
	delete(p.drivers, driverID)
	if p.observer != nil {
		p.observer.DriverOffline(driverID)
	}
	return true
}

// GoOfflineIf removes driverID when keep reports false for its current entry.
// keep runs under the tracker lock, so no GoOnline can slip in between the
// check and the removal. It reports whether the driver was removed.
func (p *Presence) GoOfflineIf(driverID string, keep func(DriverPresence) bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.drivers[driverID]
	if !ok {
		return false
	}
	entry.mu.Lock()
	state := entry.state
	entry.mu.Unlock()
	if keep(state) {
		return false
	}

	delete(p.drivers, driverID)
	if p.observer != nil {
		p.observer.DriverOffline(driverID)
	}
	return true
}

// UpdateLocation moves an online driver. Presence is unchanged on error.
func (p *Presence) UpdateLocation(driverID string, lat, lon float64) (DriverPresence, error) {
	if err := validCoordinates(lat, lon); err != nil {
		return DriverPresence{}, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.drivers[driverID]
	if !ok {
		return DriverPresence{}, ErrNotOnline
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.state.Latitude = lat
	entry.state.Longitude = lon
	entry.state.LastUpdatedAt = p.now().UTC()
	if p.observer != nil {
		p.observer.DriverMoved(entry.state)
	}
	return entry.state, nil
}

// Get returns the presence of driverID.
func (p *Presence) Get(driverID string) (DriverPresence, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.drivers[driverID]
	if !ok {
		return DriverPresence{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state, true
}

// OnlineDrivers returns a point-in-time copy of every online driver.
func (p *Presence) OnlineDrivers() []DriverPresence {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]DriverPresence, 0, len(p.drivers))
	for _, entry := range p.drivers {
		entry.mu.Lock()
		out = append(out, entry.state)
		entry.mu.Unlock()
	}
	return out
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.drivers)
}

// ExpireStale removes drivers whose last update is older than maxAge and returns
// their ids.
func (p *Presence) ExpireStale(maxAge time.Duration) []string {
	cutoff := p.now().UTC().Add(-maxAge)

	p.mu.Lock()
	defer p.mu.Unlock()

	var expired []string
	for id, entry := range p.drivers {
		entry.mu.Lock()
		stale := entry.state.LastUpdatedAt.Before(cutoff)
		entry.mu.Unlock()
		if !stale {
			continue
		}
		delete(p.drivers, id)
		expired = append(expired, id)
		if p.observer != nil {
			p.observer.DriverOffline(id)
		}
	}
	return expired
}
