package geospatial

import (
	"math"

	"github.com/samirrijal/corridor/internal/core/domain"
)

// StepLength returns the sampling interval, in meters, for a corridor of the
// given width: bufferWidth / sin(60°). Circular queries of this radius placed
// at this spacing still reach the full corridor width at the midpoint between
// adjacent centers, so the corridor is covered without gaps.
func StepLength(bufferWidthM float64) float64 {
	return bufferWidthM / math.Sin(math.Pi/3)
}

// BuildQuerySection samples one leg at the given step length. It walks the
// leg's consecutive point pairs; for each pair with nonzero length it emits
// the pair's start point followed by floor(pairDist/step) geodesic steps
// toward the pair's end. Zero-length pairs contribute nothing. The leg's
// final point is always the last sample point.
func BuildQuerySection(leg domain.Leg, stepLength float64) domain.QuerySection {
	var section domain.QuerySection
	if len(leg) == 0 {
		return section
	}
	section.Start = leg[0]
	section.End = leg[len(leg)-1]

	points := make([]domain.GeoPoint, 0, len(leg))
	for i := 0; i+1 < len(leg); i++ {
		pairStart := leg[i]
		pairEnd := leg[i+1]

		pairDist := Distance(pairStart, pairEnd)
		if pairDist == 0 {
			continue
		}
		section.Distance += pairDist

		points = append(points, pairStart)
		cur := pairStart
		steps := int(math.Floor(pairDist / stepLength))
		for n := 0; n < steps; n++ {
			cur = MoveTowards(cur, pairEnd, stepLength)
			points = append(points, cur)
		}
	}
	points = append(points, section.End)

	section.QueryPolyline = points
	return section
}

// BuildQuerySections maps BuildQuerySection over legs, preserving order.
func BuildQuerySections(legs []domain.Leg, stepLength float64) []domain.QuerySection {
	sections := make([]domain.QuerySection, len(legs))
	for i, leg := range legs {
		sections[i] = BuildQuerySection(leg, stepLength)
	}
	return sections
}
