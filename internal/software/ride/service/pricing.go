package service

import (
	"math"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/ports"
)

// Pricing holds the fare formula: BaseFare + PerMile * distance.
type Pricing struct {
	BaseFare       float64
	PerMile        float64
	MinutesPerMile float64
	Currency       string
}

const (
	defaultBaseFare       = 2.50
	defaultPerMile        = 1.75
	defaultMinutesPerMile = 2.0
	defaultCurrency       = "usd"
)

func (p Pricing) withDefaults() Pricing {
	if p.BaseFare <= 0 {
		p.BaseFare = defaultBaseFare
	}
	if p.PerMile <= 0 {
		p.PerMile = defaultPerMile
	}
	if p.MinutesPerMile <= 0 {
		p.MinutesPerMile = defaultMinutesPerMile
	}
	if p.Currency == "" {
		p.Currency = defaultCurrency
	}
	return p
}

// quote prices a trip. Fare and distance are rounded to cents and hundredths of a mile.
func (p Pricing) quote(pickup, dropoff geo.Point) ports.Quote {
	miles := pickup.DistanceMiles(dropoff)
	return ports.Quote{
		Fare:          round2(p.BaseFare + p.PerMile*miles),
		DistanceMiles: round2(miles),
		ETAMinutes:    int(math.Ceil(miles * p.MinutesPerMile)),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
