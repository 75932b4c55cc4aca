package geo

import (
	"errors"
	"math"
)

// Point is a latitude/longitude pair with an optional street address.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// ValidateLatLon checks that the pair is within WGS84 bounds.
func ValidateLatLon(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return ErrInvalidLatitude
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// Validate checks the point's coordinates.
func (point Point) Validate() error {
	return ValidateLatLon(point.Latitude, point.Longitude)
}

// earthRadiusMiles is the mean Earth radius used for fare distances.
const earthRadiusMiles = 3959.0

// HaversineMiles returns the great-circle distance between two points in miles.
func HaversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	a1 := lat1 * math.Pi / 180
	a2 := lat2 * math.Pi / 180
	da := (lat2 - lat1) * math.Pi / 180
	db := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(da/2)*math.Sin(da/2) +
		math.Cos(a1)*math.Cos(a2)*math.Sin(db/2)*math.Sin(db/2)
	c := 2 * math.Asin(math.Sqrt(a))
	return earthRadiusMiles * c
}

// DistanceMiles returns the distance between two points in miles.
func (point Point) DistanceMiles(other Point) float64 {
	return HaversineMiles(point.Latitude, point.Longitude, other.Latitude, other.Longitude)
}
