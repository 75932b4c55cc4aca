package redisgeo

import (
	"context"
	"sync/atomic"
	"time"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/general/logger"
)

const (
	defaultQueueSize = 1024
	opTimeout        = 2 * time.Second

	// maxGeoLatitude is the Web Mercator bound Redis enforces on GEOADD.
	maxGeoLatitude = 85.05112878
)

type opKind int

const (
	opAdd opKind = iota
	opRemove
)

type op struct {
	kind opKind
	pos  Position
}

// Mirror copies presence changes into Redis for map views outside this process.
// It implements dispatch.PresenceObserver: callbacks only enqueue, and a single
// worker started by Run talks to Redis. When the queue overflows the mirror is
// marked stale and the worker rebuilds the set from a presence snapshot.
type Mirror struct {
	store    Store
	snapshot func() []dispatch.DriverPresence
	log      *logger.Logger

	ops   chan op
	stale atomic.Bool
}

var _ dispatch.PresenceObserver = (*Mirror)(nil)

// NewMirror creates a mirror. snapshot returns the authoritative online set and is
// used on start and after overflow.
func NewMirror(store Store, snapshot func() []dispatch.DriverPresence, queueSize int, log *logger.Logger) *Mirror {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = logger.Discard()
	}
	m := &Mirror{store: store, snapshot: snapshot, log: log, ops: make(chan op, queueSize)}
	m.stale.Store(true)
	return m
}

func (m *Mirror) DriverOnline(p dispatch.DriverPresence) { m.enqueue(upsert(position(p))) }
func (m *Mirror) DriverMoved(p dispatch.DriverPresence)  { m.enqueue(upsert(position(p))) }
func (m *Mirror) DriverOffline(driverID string) {
	m.enqueue(op{kind: opRemove, pos: Position{DriverID: driverID}})
}

func (m *Mirror) enqueue(o op) {
	select {
	case m.ops <- o:
	default:
		m.stale.Store(true)
	}
}

// Run applies queued changes until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	m.log.Info(ctx, "presence_mirror_started", "Presence mirror worker started", nil)
	for {
		if m.stale.Load() {
			m.resync(ctx)
		}
		select {
		case <-ctx.Done():
			return nil
		case o := <-m.ops:
			m.apply(ctx, o)
		}
	}
}

func (m *Mirror) apply(ctx context.Context, o op) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var err error
	switch o.kind {
	case opAdd:
		err = m.store.Add(opCtx, o.pos.DriverID, o.pos.Latitude, o.pos.Longitude)
	case opRemove:
		err = m.store.Remove(opCtx, o.pos.DriverID)
	}
	if err != nil {
		m.stale.Store(true)
		m.log.Error(ctx, "presence_mirror_write_failed", "Failed to mirror driver presence", err, map[string]any{
			"driver_id": o.pos.DriverID,
		})
	}
}

// resync drains queued ops, which the snapshot supersedes, and rewrites the set.
func (m *Mirror) resync(ctx context.Context) {
	m.stale.Store(false)
	for drained := false; !drained; {
		select {
		case <-m.ops:
		default:
			drained = true
		}
	}

	online := m.snapshot()
	drivers := make([]Position, 0, len(online))
	for _, p := range online {
		if pos := position(p); indexable(pos) {
			drivers = append(drivers, pos)
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := m.store.Reset(opCtx, drivers); err != nil {
		m.stale.Store(true)
		m.log.Error(ctx, "presence_mirror_resync_failed", "Failed to rebuild presence mirror", err, nil)
		// back off before the next attempt
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}
	m.log.Info(ctx, "presence_mirror_resynced", "Presence mirror rebuilt", map[string]any{
		"drivers": len(drivers),
		"skipped": len(online) - len(drivers),
	})
}

func position(p dispatch.DriverPresence) Position {
	return Position{DriverID: p.DriverID, Latitude: p.Latitude, Longitude: p.Longitude}
}

// upsert adds pos to the set, or drops the driver from it when Redis cannot index
// the latitude. Such drivers stay dispatchable in memory.
func upsert(pos Position) op {
	if !indexable(pos) {
		return op{kind: opRemove, pos: Position{DriverID: pos.DriverID}}
	}
	return op{kind: opAdd, pos: pos}
}

func indexable(pos Position) bool {
	return pos.Latitude >= -maxGeoLatitude && pos.Latitude <= maxGeoLatitude
}
