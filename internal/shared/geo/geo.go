package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// DistanceMeters returns the great-circle distance between two coordinates in meters.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}
	return orbgeo.DistanceHaversine(orb.Point{lng1, lat1}, orb.Point{lng2, lat2})
}

// Distance3D combines the horizontal great-circle distance with the absolute
// altitude change.
func Distance3D(lat1, lng1, alt1, lat2, lng2, alt2 float64) float64 {
	horizontal := DistanceMeters(lat1, lng1, lat2, lng2)
	vertical := math.Abs(alt2 - alt1)
	return math.Sqrt(horizontal*horizontal + vertical*vertical)
}

// SlopeDegrees is the inclination of a segment with the given vertical drop
// over the given horizontal distance. Zero distance yields zero.
func SlopeDegrees(drop, horizontal float64) float64 {
	if horizontal <= 0 {
		return 0
	}
	return math.Atan2(math.Abs(drop), horizontal) * 180 / math.Pi
}
