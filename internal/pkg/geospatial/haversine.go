package geospatial

import (
	"math"

	"github.com/samirrijal/corridor/internal/core/domain"
)

const earthRadiusKm = 6371.0

// MinThreshold is the minimum usable distance in meters. It doubles as the
// inclusion tolerance when deciding whether a point sits inside a corridor:
// distances this close to the boundary count as inside.
const MinThreshold = 0.1

// Distance calculates the great-circle distance in meters between two points.
func Distance(p1, p2 domain.GeoPoint) float64 {
	dLat := toRad(p2.Lat - p1.Lat)
	dLon := toRad(p2.Lon - p1.Lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(p1.Lat))*math.Cos(toRad(p2.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in degrees.
func Bearing(p1, p2 domain.GeoPoint) float64 {
	lat1 := toRad(p1.Lat)
	lat2 := toRad(p2.Lat)
	dLon := toRad(p2.Lon - p1.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return math.Mod(toDeg(math.Atan2(y, x))+360.0, 360.0)
}

// MoveTowards returns the point reached by moving byMeters from `from` along
// the great-circle path toward `towards`. The two points must be distinct;
// callers guard zero-length pairs before stepping.
func MoveTowards(from, towards domain.GeoPoint, byMeters float64) domain.GeoPoint {
	angDist := byMeters / (earthRadiusKm * 1000)
	brng := toRad(Bearing(from, towards))
	lat1 := toRad(from.Lat)
	lon1 := toRad(from.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angDist) +
		math.Cos(lat1)*math.Sin(angDist)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(angDist)*math.Cos(lat1),
		math.Cos(angDist)-math.Sin(lat1)*math.Sin(lat2))

	return domain.GeoPoint{Lat: toDeg(lat2), Lon: toDeg(lon2)}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
