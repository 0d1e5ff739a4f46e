package geospatial_test

import (
	"math"
	"testing"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/pkg/geospatial"
)

func within(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("got %v, want %v (tolerance %v)", got, want, tol)
	}
}

func TestDistance(t *testing.T) {
	// One degree of longitude at the equator is ~111.19 km.
	d := geospatial.Distance(domain.GeoPoint{Lat: 0, Lon: 0}, domain.GeoPoint{Lat: 0, Lon: 1})
	within(t, d, 111195, 10)

	// One degree of latitude anywhere is the same arc.
	d = geospatial.Distance(domain.GeoPoint{Lat: 0, Lon: 0}, domain.GeoPoint{Lat: 1, Lon: 0})
	within(t, d, 111195, 10)
}

func TestDistanceZero(t *testing.T) {
	p := domain.GeoPoint{Lat: 43.2630, Lon: -2.9350}
	if d := geospatial.Distance(p, p); d != 0 {
		t.Fatalf("distance of a point to itself = %v, want 0", d)
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := domain.GeoPoint{Lat: 43.2630, Lon: -2.9350} // Bilbao
	b := domain.GeoPoint{Lat: 43.3183, Lon: -1.9812} // Donostia
	within(t, geospatial.Distance(a, b), geospatial.Distance(b, a), 1e-9)
}

func TestBearing(t *testing.T) {
	origin := domain.GeoPoint{Lat: 0, Lon: 0}

	tests := []struct {
		name string
		to   domain.GeoPoint
		want float64
	}{
		{"due east", domain.GeoPoint{Lat: 0, Lon: 1}, 90},
		{"due north", domain.GeoPoint{Lat: 1, Lon: 0}, 0},
		{"due west", domain.GeoPoint{Lat: 0, Lon: -1}, 270},
		{"due south", domain.GeoPoint{Lat: -1, Lon: 0}, 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			within(t, geospatial.Bearing(origin, tt.to), tt.want, 1e-6)
		})
	}
}

func TestMoveTowardsDistance(t *testing.T) {
	from := domain.GeoPoint{Lat: 43.2630, Lon: -2.9350}
	towards := domain.GeoPoint{Lat: 43.3183, Lon: -1.9812}

	for _, step := range []float64{1, 50, 500, 5000} {
		moved := geospatial.MoveTowards(from, towards, step)
		within(t, geospatial.Distance(from, moved), step, 1e-3)
	}
}

func TestMoveTowardsDirection(t *testing.T) {
	from := domain.GeoPoint{Lat: 0, Lon: 0}
	towards := domain.GeoPoint{Lat: 0, Lon: 1}

	moved := geospatial.MoveTowards(from, towards, 1000)
	within(t, moved.Lat, 0, 1e-6)
	within(t, moved.Lon, 1000.0/111195, 1e-5)
}

func TestMoveTowardsConverges(t *testing.T) {
	// Stepping repeatedly toward a target shrinks the remaining distance
	// by the step each time.
	from := domain.GeoPoint{Lat: 43.2630, Lon: -2.9350}
	towards := domain.GeoPoint{Lat: 43.3183, Lon: -1.9812}
	total := geospatial.Distance(from, towards)

	cur := from
	for i := 0; i < 5; i++ {
		cur = geospatial.MoveTowards(cur, towards, 1000)
	}
	within(t, geospatial.Distance(cur, towards), total-5000, 1.0)
}
