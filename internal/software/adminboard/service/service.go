package service

import (
	"context"
	"sort"
	"time"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/ports"
)

// adminService reads live state from the dispatch core and history from the ride store.
type adminService struct {
	metrics  ports.RideMetrics
	registry *dispatch.Registry
	presence *dispatch.Presence
	router   *dispatch.Router
	now      func() time.Time
}

// NewAdminService creates a new instance of the AdminService with the provided dependencies.
func NewAdminService(
	metrics ports.RideMetrics,
	registry *dispatch.Registry,
	presence *dispatch.Presence,
	router *dispatch.Router,
) ports.AdminService {
	return &adminService{
		metrics:  metrics,
		registry: registry,
		presence: presence,
		router:   router,
		now:      time.Now,
	}
}

// Overview collects live counters and per-status counts of rides requested since
// midnight UTC.
func (service *adminService) Overview(ctx context.Context) (ports.SystemOverview, error) {
	now := service.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	res := ports.SystemOverview{
		Timestamp: now,
		Live: ports.DispatchStats{
			Connections:   service.registry.Count(),
			OnlineDrivers: service.presence.Count(),
		},
		RidesToday: make(map[string]int),
	}

	counts, err := service.metrics.CountByStatusSince(ctx, startOfDay)
	if err != nil {
		return ports.SystemOverview{}, err
	}
	for status, n := range counts {
		res.RidesToday[status.String()] = n
		if status.InProgress() {
			res.ActiveRides += n
		}
	}
	return res, nil
}

// OnlineDrivers lists online drivers ordered by id.
func (service *adminService) OnlineDrivers(ctx context.Context) []ports.OnlineDriverView {
	online := service.presence.OnlineDrivers()
	sort.Slice(online, func(i, j int) bool { return online[i].DriverID < online[j].DriverID })

	out := make([]ports.OnlineDriverView, 0, len(online))
	for _, p := range online {
		out = append(out, ports.OnlineDriverView{
			DriverID:      p.DriverID,
			Latitude:      p.Latitude,
			Longitude:     p.Longitude,
			LastUpdatedAt: p.LastUpdatedAt,
			ActiveRides:   rideIDs(service.router.ActiveRides(p.DriverID)),
		})
	}
	return out
}

func rideIDs(active map[string]string) []string {
	if len(active) == 0 {
		return nil
	}
	ids := make([]string, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
