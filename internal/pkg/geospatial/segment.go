package geospatial

import (
	"math"

	"github.com/samirrijal/corridor/internal/core/domain"
)

// Angles at the segment start below/above these bounds make the triangle
// solution numerically unstable; fall back to the nearer endpoint there.
const (
	minStableAngle = 0.0017          // ~0.1 degrees
	maxStableAngle = math.Pi - 0.0017 // ~179.9 degrees
)

// SegmentDistance returns the distance in meters from point to the segment
// [segStart, segEnd], the segment itself rather than the infinite line
// through it.
//
// It solves the triangle (segStart, segEnd, point) with the law of cosines:
// when the foot of the perpendicular from point falls outside the segment,
// the answer is the distance to the nearer endpoint; otherwise it is the
// perpendicular distance sin(angleC)·b. Degenerate triangles (zero-length
// segment, point on an endpoint, collinear points, unstable angles) resolve
// to endpoint distances before any trigonometry runs. The branch order
// encodes which degeneracy takes priority.
func SegmentDistance(segStart, segEnd, point domain.GeoPoint) float64 {
	a := Distance(segStart, segEnd)
	b := Distance(segStart, point)
	c := Distance(segEnd, point)

	// Degenerate segment: collapse to point distance.
	if a < MinThreshold {
		return math.Min(b, c)
	}
	// Point effectively on an endpoint.
	if b < MinThreshold {
		return b
	}
	if c < MinThreshold {
		return c
	}

	// Obtuse at segEnd: the foot lies beyond segEnd.
	cosB := (a*a + c*c - b*b) / (2 * a * c)
	if cosB <= 0 {
		return c
	}

	// Obtuse at segStart: the foot lies before segStart.
	cosC := (a*a + b*b - c*c) / (2 * a * b)
	if cosC <= 0 {
		return b
	}
	if cosC <= -1 || cosC >= 1 {
		return math.Min(b, c)
	}

	angleC := math.Acos(cosC)
	if angleC < minStableAngle || angleC > maxStableAngle {
		return math.Min(b, c)
	}

	return math.Sin(angleC) * b
}
