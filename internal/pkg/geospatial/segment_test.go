package geospatial_test

import (
	"testing"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/pkg/geospatial"
)

// A ~1.1 km west-east segment on the equator. At this scale one degree of
// latitude or longitude is ~111.19 km, so 0.00036 degrees is ~40 m.
var (
	segStart = domain.GeoPoint{Lat: 0, Lon: 0}
	segEnd   = domain.GeoPoint{Lat: 0, Lon: 0.01}
)

func TestSegmentDistanceDegenerateSegment(t *testing.T) {
	p := domain.GeoPoint{Lat: 0.001, Lon: 0.002}
	got := geospatial.SegmentDistance(segStart, segStart, p)
	want := geospatial.Distance(segStart, p)
	within(t, got, want, 1e-9)
}

func TestSegmentDistancePointOnEndpoint(t *testing.T) {
	if d := geospatial.SegmentDistance(segStart, segEnd, segStart); d != 0 {
		t.Errorf("distance to segment start = %v, want 0", d)
	}
	if d := geospatial.SegmentDistance(segStart, segEnd, segEnd); d != 0 {
		t.Errorf("distance to segment end = %v, want 0", d)
	}
}

func TestSegmentDistancePerpendicular(t *testing.T) {
	// 40 m north of the segment midpoint: the perpendicular foot lies well
	// inside the segment, so the answer is the perpendicular distance.
	p := domain.GeoPoint{Lat: 0.00036, Lon: 0.005}
	got := geospatial.SegmentDistance(segStart, segEnd, p)
	within(t, got, 40.0, 1.0)
}

func TestSegmentDistanceFootBeyondEnd(t *testing.T) {
	// Past segEnd on the extension of the line: must report the distance to
	// the nearer endpoint, never the (zero) perpendicular distance.
	p := domain.GeoPoint{Lat: 0, Lon: 0.02}
	got := geospatial.SegmentDistance(segStart, segEnd, p)
	within(t, got, geospatial.Distance(segEnd, p), 1e-6)
}

func TestSegmentDistanceFootBeforeStart(t *testing.T) {
	p := domain.GeoPoint{Lat: 0, Lon: -0.005}
	got := geospatial.SegmentDistance(segStart, segEnd, p)
	within(t, got, geospatial.Distance(segStart, p), 1e-6)
}

func TestSegmentDistanceCollinearInterior(t *testing.T) {
	// A point lying on the segment itself forms a degenerate triangle
	// (angle ~0); the fallback reports the nearer endpoint distance.
	p := domain.GeoPoint{Lat: 0, Lon: 0.003}
	got := geospatial.SegmentDistance(segStart, segEnd, p)
	within(t, got, geospatial.Distance(segStart, p), 1e-6)
}

func TestSegmentDistanceNearEndpointThreshold(t *testing.T) {
	// 5 cm along the segment from its start: below the minimum threshold,
	// reported as the raw endpoint distance.
	p := geospatial.MoveTowards(segStart, segEnd, 0.05)
	got := geospatial.SegmentDistance(segStart, segEnd, p)
	within(t, got, 0.05, 0.01)
}

func TestSegmentDistanceOffsetFromEndpointRegion(t *testing.T) {
	// Diagonal offset past the end: nearer endpoint is segEnd.
	p := domain.GeoPoint{Lat: 0.0005, Lon: 0.012}
	got := geospatial.SegmentDistance(segStart, segEnd, p)
	within(t, got, geospatial.Distance(segEnd, p), 1e-6)
}
