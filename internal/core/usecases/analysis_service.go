package usecases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/core/ports"
	"github.com/samirrijal/corridor/internal/pkg/geospatial"
)

var (
	// ErrIndexRequired is returned by the constructor when no geo index
	// handle is supplied.
	ErrIndexRequired = errors.New("corridor: geo index handle is required")

	// ErrWidthTooNarrow rejects buffer widths below the minimum threshold.
	ErrWidthTooNarrow = fmt.Errorf("corridor: buffer width must be at least %g meters", geospatial.MinThreshold)

	// ErrWidthNotFinite rejects NaN and infinite buffer widths.
	ErrWidthNotFinite = errors.New("corridor: buffer width must be a finite number")

	// ErrLegTooShort rejects legs with fewer than two points.
	ErrLegTooShort = errors.New("corridor: each leg needs at least two points")

	// ErrRoutesUnavailable is returned when stored-route analysis is
	// requested but no route repository is configured.
	ErrRoutesUnavailable = errors.New("corridor: route repository not configured")

	// ErrRouteNotFound is returned when the requested route slug does not exist.
	ErrRouteNotFound = errors.New("corridor: route not found")

	// ErrRadiusInvalid rejects non-positive or NaN nearby radii.
	ErrRadiusInvalid = errors.New("corridor: radius must be a positive number of kilometers")
)

const (
	defaultMaxConcurrentQueries = 16

	// maxNearbyRadiusKm caps ad-hoc nearby queries; larger radii degrade
	// into full-index scans on every backend.
	maxNearbyRadiusKm = 100
)

// AnalysisService runs corridor (linear buffer) analyses: it approximates a
// query for "every indexed entry within W meters of this polyline" on top of
// an index that only answers circular radius queries, by sampling each leg,
// fanning out one radius query per sample point, and refining every candidate
// with exact point-to-segment distances.
type AnalysisService struct {
	index         ports.GeoIndex
	routes        ports.RouteRepository
	publisher     ports.EventPublisher
	maxConcurrent int
}

// NewAnalysisService creates an AnalysisService bound to a geo index handle.
// The index is the one collaborator the engine cannot run without; routes and
// publisher may be nil (stored-route analysis and event publishing are then
// disabled).
func NewAnalysisService(
	index ports.GeoIndex,
	routes ports.RouteRepository,
	publisher ports.EventPublisher,
	maxConcurrentQueries int,
) (*AnalysisService, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if maxConcurrentQueries <= 0 {
		maxConcurrentQueries = defaultMaxConcurrentQueries
	}
	return &AnalysisService{
		index:         index,
		routes:        routes,
		publisher:     publisher,
		maxConcurrent: maxConcurrentQueries,
	}, nil
}

// Analyze reports every indexed entry lying within bufferWidthM meters of any
// segment of any leg. The result holds one LegResult per leg, in input order.
//
// The call is atomic: it returns either a complete result or an error, never
// partial legs. No per-query timeout is applied; a stalled index query
// stalls the whole call until ctx is canceled.
func (s *AnalysisService) Analyze(ctx context.Context, legs []domain.Leg, bufferWidthM float64) (domain.AnalysisResult, error) {
	return s.analyze(ctx, legs, bufferWidthM, "")
}

// AnalyzeRoute runs a corridor analysis over a stored route's shape.
func (s *AnalysisService) AnalyzeRoute(ctx context.Context, slug string, bufferWidthM float64) (domain.AnalysisResult, *domain.Route, error) {
	if s.routes == nil {
		return nil, nil, ErrRoutesUnavailable
	}

	route, err := s.routes.GetBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	if route == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrRouteNotFound, slug)
	}

	result, err := s.analyze(ctx, []domain.Leg{route.Shape.Leg()}, bufferWidthM, route.Slug)
	if err != nil {
		return nil, nil, err
	}
	return result, route, nil
}

// Nearby returns every indexed entry within radiusKm of center, straight
// from the configured index backend. Radii above maxNearbyRadiusKm are
// clamped.
func (s *AnalysisService) Nearby(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error) {
	if center.Lat < -90 || center.Lat > 90 || center.Lon < -180 || center.Lon > 180 {
		return nil, fmt.Errorf("%w: lat=%g lon=%g", ErrInvalidLocation, center.Lat, center.Lon)
	}
	if radiusKm <= 0 || math.IsNaN(radiusKm) {
		return nil, ErrRadiusInvalid
	}
	if radiusKm > maxNearbyRadiusKm {
		radiusKm = maxNearbyRadiusKm
	}

	matches, err := s.index.QueryRadius(ctx, center, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("nearby query: %w", err)
	}
	return matches, nil
}

func (s *AnalysisService) analyze(ctx context.Context, legs []domain.Leg, bufferWidthM float64, routeSlug string) (domain.AnalysisResult, error) {
	if err := validateBufferWidth(bufferWidthM); err != nil {
		return nil, err
	}
	for _, leg := range legs {
		if len(leg) < 2 {
			return nil, ErrLegTooShort
		}
	}

	result := make(domain.AnalysisResult, len(legs))
	if len(legs) == 0 {
		return result, nil
	}

	start := time.Now()
	stepLength := geospatial.StepLength(bufferWidthM)
	sections := geospatial.BuildQuerySections(legs, stepLength)

	// All legs run concurrently; each slot is written by exactly one
	// goroutine, so the ordered result needs no locking.
	g, gctx := errgroup.WithContext(ctx)
	for i, section := range sections {
		g.Go(func() error {
			legResult, err := s.analyzeSection(gctx, section, stepLength, bufferWidthM)
			if err != nil {
				return err
			}
			result[i] = legResult
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		// Notify subscribers; delivery failures don't fail the analysis.
		_ = s.publisher.PublishAnalysisEvent(ctx, &domain.AnalysisEvent{
			AnalysisID:   uuid.NewString(),
			RouteSlug:    routeSlug,
			BufferWidthM: bufferWidthM,
			Legs:         len(legs),
			SamplePoints: result.SamplePointCount(),
			Matches:      result.MatchCount(),
			DurationMS:   time.Since(start).Milliseconds(),
			Time:         time.Now().UTC(),
		})
	}

	return result, nil
}

// analyzeSection fans out one radius query per sample point and merges the
// accepted matches into a single deduplicated set for the leg.
func (s *AnalysisService) analyzeSection(ctx context.Context, section domain.QuerySection, stepLength, bufferWidthM float64) (domain.LegResult, error) {
	points := section.QueryPolyline
	perPoint := make([][]domain.IndexMatch, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i := range points {
		g.Go(func() error {
			matches, err := s.queryPoint(gctx, points, i, stepLength, bufferWidthM)
			if err != nil {
				return err
			}
			perPoint[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.LegResult{}, err
	}

	// Single-collector merge after the join, walking sample points in
	// order: the lowest-indexed query that saw a key supplies its match.
	merged := make(map[string]domain.IndexMatch)
	for _, matches := range perPoint {
		for _, m := range matches {
			if _, ok := merged[m.Key]; !ok {
				merged[m.Key] = m
			}
		}
	}

	return domain.LegResult{Section: section, Matches: merged}, nil
}

// queryPoint issues the radius query for sample point i and keeps only
// candidates genuinely within the buffer width of the corridor.
//
// The query radius is the step length, which is wider than the buffer width
// by construction, so the circles overlap and cover the corridor without gaps;
// the excess is what the segment-distance refinement cuts away. Interior
// sample points refine against both neighboring segments; endpoints fall
// back to plain point distance.
func (s *AnalysisService) queryPoint(ctx context.Context, points []domain.GeoPoint, i int, stepLength, bufferWidthM float64) ([]domain.IndexMatch, error) {
	center := points[i]

	// The index contract takes kilometers.
	candidates, err := s.index.QueryRadius(ctx, center, stepLength/1000)
	if err != nil {
		return nil, fmt.Errorf("radius query at sample point %d: %w", i, err)
	}

	var accepted []domain.IndexMatch
	for _, cand := range candidates {
		var minD float64
		if i > 0 && i < len(points)-1 {
			d1 := geospatial.SegmentDistance(points[i-1], center, cand.Location)
			d2 := geospatial.SegmentDistance(center, points[i+1], cand.Location)
			minD = math.Min(d1, d2)
		} else {
			minD = geospatial.Distance(center, cand.Location)
		}
		if minD-bufferWidthM < geospatial.MinThreshold {
			accepted = append(accepted, cand)
		}
	}
	return accepted, nil
}

func validateBufferWidth(widthM float64) error {
	if math.IsNaN(widthM) || math.IsInf(widthM, 0) {
		return ErrWidthNotFinite
	}
	if widthM < geospatial.MinThreshold {
		return ErrWidthTooNarrow
	}
	return nil
}
