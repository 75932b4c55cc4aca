package dispatch

import (
	"context"
	"time"

	"ride-dispatch/internal/general/logger"
)

// Sweeper takes drivers offline when they have not reported a location within ttl.
// Socket liveness already covers dead connections; this catches clients that keep
// the socket open but stop sending positions.
type Sweeper struct {
	presence *Presence
	router   *Router
	ttl      time.Duration
	interval time.Duration
	log      *logger.Logger
}

func NewSweeper(presence *Presence, router *Router, ttl, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = ttl / 2
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Sweeper{presence: presence, router: router, ttl: ttl, interval: interval, log: log}
}

// Run sweeps every interval until ctx is cancelled. A non-positive ttl disables it.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep expires stale drivers once and returns their ids.
func (s *Sweeper) Sweep(ctx context.Context) []string {
	expired := s.presence.ExpireStale(s.ttl)
	for _, id := range expired {
		s.log.Info(ctx, "driver_presence_expired", "driver went offline after missing location updates", map[string]any{
			"driver_id": id,
			"ttl":       s.ttl.String(),
		})
		if s.router != nil {
			s.router.Publish(ctx, DriverPresenceChanged{DriverID: id, Online: false})
		}
	}
	return expired
}
