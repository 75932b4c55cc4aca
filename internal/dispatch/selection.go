package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"ride-dispatch/internal/domain/geo"
)

// CandidateRequest is what a selection policy knows about a new ride.
type CandidateRequest struct {
	RideID string
	Pickup geo.Point
}

// CandidateSelector picks which online drivers are offered a ride.
type CandidateSelector interface {
	SelectCandidates(req CandidateRequest, online []DriverPresence) []string
}

// SelectorFunc adapts a plain function to CandidateSelector.
type SelectorFunc func(req CandidateRequest, online []DriverPresence) []string

func (f SelectorFunc) SelectCandidates(req CandidateRequest, online []DriverPresence) []string {
	return f(req, online)
}

// All offers the ride to every online driver.
func All() CandidateSelector {
	return SelectorFunc(func(_ CandidateRequest, online []DriverPresence) []string {
		ids := make([]string, 0, len(online))
		for _, p := range online {
			ids = append(ids, p.DriverID)
		}
		return ids
	})
}

// NearestK offers the ride to at most k drivers within radiusMiles of the pickup,
// closest first. Ties are broken by driver id. A non-positive radius means no limit.
func NearestK(k int, radiusMiles float64) CandidateSelector {
	return SelectorFunc(func(req CandidateRequest, online []DriverPresence) []string {
		type ranked struct {
			id    string
			miles float64
		}

		pool := make([]ranked, 0, len(online))
		for _, p := range online {
			d := req.Pickup.DistanceMiles(p.Point())
			if radiusMiles > 0 && d > radiusMiles {
				continue
			}
			pool = append(pool, ranked{id: p.DriverID, miles: d})
		}

		sort.Slice(pool, func(i, j int) bool {
			if pool[i].miles != pool[j].miles {
				return pool[i].miles < pool[j].miles
			}
			return pool[i].id < pool[j].id
		})

		if k > 0 && len(pool) > k {
			pool = pool[:k]
		}
		ids := make([]string, len(pool))
		for i, r := range pool {
			ids[i] = r.id
		}
		return ids
	})
}

// Candidate policy names accepted in configuration.
const (
	PolicyAll     = "all"
	PolicyNearest = "nearest"
)

// SelectorFromPolicy builds the selector named by policy.
func SelectorFromPolicy(policy string, k int, radiusMiles float64) (CandidateSelector, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", PolicyAll:
		return All(), nil
	case PolicyNearest:
		return NearestK(k, radiusMiles), nil
	default:
		return nil, fmt.Errorf("unknown candidate policy %q", policy)
	}
}
