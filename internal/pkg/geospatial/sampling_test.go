package geospatial_test

import (
	"math"
	"testing"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/pkg/geospatial"
)

func TestStepLength(t *testing.T) {
	sin60 := math.Sin(math.Pi / 3)

	for _, width := range []float64{0.1, 1, 50, 1000} {
		step := geospatial.StepLength(width)
		within(t, step, width/sin60, 1e-12)
		if step <= width {
			t.Errorf("StepLength(%v) = %v, want strictly greater than the width", width, step)
		}
	}
}

func TestBuildQuerySectionSingleSegment(t *testing.T) {
	leg := domain.Leg{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}}
	step := geospatial.StepLength(50)

	section := geospatial.BuildQuerySection(leg, step)

	if section.Start != leg[0] || section.End != leg[1] {
		t.Fatalf("section endpoints %+v..%+v, want leg endpoints", section.Start, section.End)
	}

	total := geospatial.Distance(leg[0], leg[1])
	within(t, section.Distance, total, 1e-6)

	pts := section.QueryPolyline
	if len(pts) < 2 {
		t.Fatalf("expected at least 2 sample points, got %d", len(pts))
	}
	if pts[0] != leg[0] {
		t.Errorf("first sample point %+v, want leg start", pts[0])
	}
	if pts[len(pts)-1] != leg[1] {
		t.Errorf("last sample point %+v, want leg end", pts[len(pts)-1])
	}

	wantLen := 2 + int(math.Floor(total/step))
	if len(pts) != wantLen {
		t.Errorf("sample point count = %d, want %d", len(pts), wantLen)
	}

	// Consecutive samples are exactly one step apart except the final
	// remainder, which may be shorter.
	for i := 0; i+2 < len(pts); i++ {
		within(t, geospatial.Distance(pts[i], pts[i+1]), step, 0.01)
	}
	last := geospatial.Distance(pts[len(pts)-2], pts[len(pts)-1])
	if last > step+0.01 {
		t.Errorf("final gap %v exceeds step %v", last, step)
	}
}

func TestBuildQuerySectionShortSegment(t *testing.T) {
	// A pair shorter than the step yields only its endpoints.
	leg := domain.Leg{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.0002}} // ~22 m
	section := geospatial.BuildQuerySection(leg, geospatial.StepLength(50))

	if len(section.QueryPolyline) != 2 {
		t.Fatalf("sample points = %d, want 2", len(section.QueryPolyline))
	}
}

func TestBuildQuerySectionSkipsZeroLengthPairs(t *testing.T) {
	a := domain.GeoPoint{Lat: 0, Lon: 0}
	b := domain.GeoPoint{Lat: 0, Lon: 0.01}
	step := geospatial.StepLength(50)

	plain := geospatial.BuildQuerySection(domain.Leg{a, b}, step)
	dup := geospatial.BuildQuerySection(domain.Leg{a, a, b, b}, step)

	if len(dup.QueryPolyline) != len(plain.QueryPolyline) {
		t.Fatalf("duplicated vertices changed sample count: %d vs %d",
			len(dup.QueryPolyline), len(plain.QueryPolyline))
	}
	within(t, dup.Distance, plain.Distance, 1e-9)
}

func TestBuildQuerySectionMultiSegment(t *testing.T) {
	a := domain.GeoPoint{Lat: 0, Lon: 0}
	b := domain.GeoPoint{Lat: 0, Lon: 0.005}
	c := domain.GeoPoint{Lat: 0.004, Lon: 0.005}
	leg := domain.Leg{a, b, c}

	section := geospatial.BuildQuerySection(leg, geospatial.StepLength(50))

	want := geospatial.Distance(a, b) + geospatial.Distance(b, c)
	within(t, section.Distance, want, 1e-6)

	// Every original vertex that starts a pair is itself a sample point.
	foundB := false
	for _, p := range section.QueryPolyline {
		if p == b {
			foundB = true
			break
		}
	}
	if !foundB {
		t.Error("interior vertex missing from sample points")
	}
	if section.Start != a || section.End != c {
		t.Errorf("endpoints %+v..%+v, want %+v..%+v", section.Start, section.End, a, c)
	}
}

func TestBuildQuerySectionsPreservesOrder(t *testing.T) {
	legA := domain.Leg{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}}
	legB := domain.Leg{{Lat: 1, Lon: 1}, {Lat: 1, Lon: 1.01}}

	sections := geospatial.BuildQuerySections([]domain.Leg{legA, legB}, geospatial.StepLength(50))

	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}
	if sections[0].Start != legA[0] || sections[1].Start != legB[0] {
		t.Error("sections out of input order")
	}
}
