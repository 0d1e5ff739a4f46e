package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Leg is one contiguous polyline submitted for corridor analysis.
// Callers supply at least two points; legs are read-only inputs.
type Leg []GeoPoint

// GeoLineString represents an ordered sequence of geographic coordinates.
type GeoLineString struct {
	Coordinates []GeoPoint `json:"coordinates"`
}

// Leg converts a stored line string into an analyzable leg.
func (l GeoLineString) Leg() Leg {
	return Leg(l.Coordinates)
}
