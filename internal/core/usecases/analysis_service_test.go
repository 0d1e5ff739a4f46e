package usecases_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/core/usecases"
	"github.com/samirrijal/corridor/internal/pkg/geospatial"
)

// --- Mock GeoIndex ---

// mockGeoIndex answers radius queries from a fixed entry set using real
// great-circle distances, the way the production backends do. A queryFn
// overrides that behavior when set.
type mockGeoIndex struct {
	entries []domain.IndexMatch
	queryFn func(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error)
	queries atomic.Int64
}

func (m *mockGeoIndex) QueryRadius(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error) {
	m.queries.Add(1)
	if m.queryFn != nil {
		return m.queryFn(ctx, center, radiusKm)
	}
	var out []domain.IndexMatch
	for _, e := range m.entries {
		if geospatial.Distance(center, e.Location) <= radiusKm*1000 {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- Mock RouteRepository ---

type mockRouteRepo struct {
	upsertFn    func(ctx context.Context, route *domain.Route) error
	getBySlugFn func(ctx context.Context, slug string) (*domain.Route, error)
	listFn      func(ctx context.Context, limit, offset int) ([]domain.Route, int, error)
	listSlugsFn func(ctx context.Context) ([]string, error)
	deleteFn    func(ctx context.Context, slug string) error
}

func (m *mockRouteRepo) Upsert(ctx context.Context, route *domain.Route) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, route)
	}
	return nil
}

func (m *mockRouteRepo) Delete(ctx context.Context, slug string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, slug)
	}
	return nil
}

func (m *mockRouteRepo) GetBySlug(ctx context.Context, slug string) (*domain.Route, error) {
	if m.getBySlugFn != nil {
		return m.getBySlugFn(ctx, slug)
	}
	return nil, nil
}

func (m *mockRouteRepo) List(ctx context.Context, limit, offset int) ([]domain.Route, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, 0, nil
}

func (m *mockRouteRepo) ListSlugs(ctx context.Context) ([]string, error) {
	if m.listSlugsFn != nil {
		return m.listSlugsFn(ctx)
	}
	return nil, nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu       sync.Mutex
	entries  []*domain.EntryEvent
	analyses []*domain.AnalysisEvent
}

func (m *mockPublisher) PublishEntryEvent(ctx context.Context, event *domain.EntryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, event)
	return nil
}

func (m *mockPublisher) PublishAnalysisEvent(ctx context.Context, event *domain.AnalysisEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, event)
	return nil
}

// --- Helpers ---

// A ~1.1 km leg along the equator.
func equatorLeg() domain.Leg {
	return domain.Leg{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}}
}

// offsetFromMidpoint places a point the given number of meters due north of
// the leg's midpoint, i.e. perpendicular to the line.
func offsetFromMidpoint(meters float64) domain.GeoPoint {
	mid := domain.GeoPoint{Lat: 0, Lon: 0.005}
	north := domain.GeoPoint{Lat: 1, Lon: 0.005}
	return geospatial.MoveTowards(mid, north, meters)
}

func newService(t *testing.T, index *mockGeoIndex) *usecases.AnalysisService {
	t.Helper()
	svc, err := usecases.NewAnalysisService(index, nil, nil, 0)
	if err != nil {
		t.Fatalf("NewAnalysisService: %v", err)
	}
	return svc
}

// --- Tests ---

func TestNewAnalysisService_RequiresIndex(t *testing.T) {
	_, err := usecases.NewAnalysisService(nil, nil, nil, 0)
	if !errors.Is(err, usecases.ErrIndexRequired) {
		t.Fatalf("expected ErrIndexRequired, got %v", err)
	}
}

func TestAnalyze_ValidatesWidthBeforeQuerying(t *testing.T) {
	tests := []struct {
		name  string
		width float64
		want  error
	}{
		{"below threshold", 0.05, usecases.ErrWidthTooNarrow},
		{"zero", 0, usecases.ErrWidthTooNarrow},
		{"negative", -10, usecases.ErrWidthTooNarrow},
		{"nan", math.NaN(), usecases.ErrWidthNotFinite},
		{"positive infinity", math.Inf(1), usecases.ErrWidthNotFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := &mockGeoIndex{}
			svc := newService(t, index)

			_, err := svc.Analyze(context.Background(), []domain.Leg{equatorLeg()}, tt.width)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if n := index.queries.Load(); n != 0 {
				t.Errorf("validation failure still issued %d queries", n)
			}
		})
	}
}

func TestAnalyze_EmptyLegs(t *testing.T) {
	index := &mockGeoIndex{}
	svc := newService(t, index)

	result, err := svc.Analyze(context.Background(), nil, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected empty result, got %d legs", len(result))
	}
	if n := index.queries.Load(); n != 0 {
		t.Errorf("empty analysis issued %d queries", n)
	}
}

func TestAnalyze_RejectsShortLeg(t *testing.T) {
	svc := newService(t, &mockGeoIndex{})

	_, err := svc.Analyze(context.Background(), []domain.Leg{{{Lat: 0, Lon: 0}}}, 50)
	if !errors.Is(err, usecases.ErrLegTooShort) {
		t.Fatalf("expected ErrLegTooShort, got %v", err)
	}
}

func TestAnalyze_CorridorScenario(t *testing.T) {
	// 50 m corridor around a ~1.1 km segment: a point 40 m off the line is
	// inside, a point 60 m off is not.
	index := &mockGeoIndex{entries: []domain.IndexMatch{
		{Key: "inside", Location: offsetFromMidpoint(40)},
		{Key: "outside", Location: offsetFromMidpoint(60)},
		{Key: "far", Location: offsetFromMidpoint(500)},
	}}
	svc := newService(t, index)

	result, err := svc.Analyze(context.Background(), []domain.Leg{equatorLeg()}, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 leg result, got %d", len(result))
	}

	matches := result[0].Matches
	if _, ok := matches["inside"]; !ok {
		t.Error("point 40 m from the corridor line missing from result")
	}
	if _, ok := matches["outside"]; ok {
		t.Error("point 60 m from the corridor line wrongly included")
	}
	if len(matches) != 1 {
		t.Errorf("expected exactly 1 match, got %d", len(matches))
	}

	section := result[0].Section
	if section.Start != (domain.GeoPoint{Lat: 0, Lon: 0}) {
		t.Errorf("section start = %+v", section.Start)
	}
	if len(section.QueryPolyline) < 2 {
		t.Errorf("query polyline has %d points", len(section.QueryPolyline))
	}
}

func TestAnalyze_BoundaryTolerance(t *testing.T) {
	// Inclusion is width plus a 0.1 m tolerance: 50.05 m is within it for a
	// 50 m corridor, 50.2 m is beyond it.
	index := &mockGeoIndex{entries: []domain.IndexMatch{
		{Key: "on-boundary", Location: offsetFromMidpoint(50)},
		{Key: "within-tolerance", Location: offsetFromMidpoint(50.05)},
		{Key: "past-tolerance", Location: offsetFromMidpoint(50.2)},
	}}
	svc := newService(t, index)

	result, err := svc.Analyze(context.Background(), []domain.Leg{equatorLeg()}, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matches := result[0].Matches
	if _, ok := matches["on-boundary"]; !ok {
		t.Error("point at exactly the buffer width excluded")
	}
	if _, ok := matches["within-tolerance"]; !ok {
		t.Error("point inside the tolerance band excluded")
	}
	if _, ok := matches["past-tolerance"]; ok {
		t.Error("point past the tolerance band included")
	}
}

func TestAnalyze_RefinementRejectsRadiusFalsePositives(t *testing.T) {
	// The query circles are wider than the corridor (radius = step length),
	// so the raw queries over-report; the segment-distance refinement must
	// cut those extras even when every query returns them.
	stray := offsetFromMidpoint(60)
	index := &mockGeoIndex{
		queryFn: func(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error) {
			return []domain.IndexMatch{{Key: "stray", Location: stray}}, nil
		},
	}
	svc := newService(t, index)

	result, err := svc.Analyze(context.Background(), []domain.Leg{equatorLeg()}, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result[0].Matches) != 0 {
		t.Fatalf("refinement kept %d false positives", len(result[0].Matches))
	}
}

func TestAnalyze_DedupOverlappingQueries(t *testing.T) {
	// An entry close to the line near its start is seen by several
	// overlapping query circles but must appear once.
	entry := domain.IndexMatch{Key: "dup", Location: domain.GeoPoint{Lat: 0.00009, Lon: 0.0002}}
	index := &mockGeoIndex{entries: []domain.IndexMatch{entry}}
	svc := newService(t, index)

	result, err := svc.Analyze(context.Background(), []domain.Leg{equatorLeg()}, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matches := result[0].Matches
	if len(matches) != 1 {
		t.Fatalf("expected 1 deduplicated match, got %d", len(matches))
	}
	if got := matches["dup"].Location; got != entry.Location {
		t.Errorf("match location %+v, want %+v", got, entry.Location)
	}
}

func TestAnalyze_FirstQueryWinsOnConflict(t *testing.T) {
	// If the index reports different locations for one key across queries,
	// the merge keeps the one from the earliest sample point.
	first := domain.GeoPoint{Lat: 0.00005, Lon: 0}
	later := domain.GeoPoint{Lat: 0.00005, Lon: 0.0001}
	index := &mockGeoIndex{
		queryFn: func(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error) {
			if center == (domain.GeoPoint{Lat: 0, Lon: 0}) {
				return []domain.IndexMatch{{Key: "k", Location: first}}, nil
			}
			return []domain.IndexMatch{{Key: "k", Location: later}}, nil
		},
	}
	svc := newService(t, index)

	result, err := svc.Analyze(context.Background(), []domain.Leg{equatorLeg()}, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result[0].Matches["k"].Location; got != first {
		t.Errorf("merged location %+v, want the first query's %+v", got, first)
	}
}

func TestAnalyze_LegOrderPreserved(t *testing.T) {
	// The first leg's queries are delayed so its results arrive last; the
	// output order must still follow input order.
	legA := equatorLeg()
	legB := domain.Leg{{Lat: 10, Lon: 10}, {Lat: 10, Lon: 10.01}}
	aKey := domain.IndexMatch{Key: "near-a", Location: offsetFromMidpoint(20)}
	bKey := domain.IndexMatch{Key: "near-b", Location: domain.GeoPoint{Lat: 10.0001, Lon: 10.005}}

	spatial := &mockGeoIndex{entries: []domain.IndexMatch{aKey, bKey}}
	index := &mockGeoIndex{
		queryFn: func(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error) {
			if center.Lat < 5 {
				time.Sleep(20 * time.Millisecond)
			}
			return spatial.QueryRadius(ctx, center, radiusKm)
		},
	}
	svc := newService(t, index)

	result, err := svc.Analyze(context.Background(), []domain.Leg{legA, legB}, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 leg results, got %d", len(result))
	}
	if _, ok := result[0].Matches["near-a"]; !ok {
		t.Error("first result slot does not correspond to the first input leg")
	}
	if _, ok := result[1].Matches["near-b"]; !ok {
		t.Error("second result slot does not correspond to the second input leg")
	}
}

func TestAnalyze_DirectionalInvariance(t *testing.T) {
	index := &mockGeoIndex{entries: []domain.IndexMatch{
		{Key: "mid", Location: offsetFromMidpoint(40)},
		{Key: "near-start", Location: domain.GeoPoint{Lat: 0.0001, Lon: 0.0005}},
		{Key: "outside", Location: offsetFromMidpoint(80)},
	}}
	svc := newService(t, index)

	leg := equatorLeg()
	reversed := domain.Leg{leg[1], leg[0]}

	forward, err := svc.Analyze(context.Background(), []domain.Leg{leg}, 50)
	if err != nil {
		t.Fatalf("forward analyze: %v", err)
	}
	backward, err := svc.Analyze(context.Background(), []domain.Leg{reversed}, 50)
	if err != nil {
		t.Fatalf("backward analyze: %v", err)
	}

	fwd := forward[0].Matches
	bwd := backward[0].Matches
	if len(fwd) != len(bwd) {
		t.Fatalf("forward found %d matches, backward %d", len(fwd), len(bwd))
	}
	for key := range fwd {
		if _, ok := bwd[key]; !ok {
			t.Errorf("key %q found forward but not backward", key)
		}
	}
}

func TestAnalyze_QueryErrorFailsWholeCall(t *testing.T) {
	errBoom := errors.New("index unavailable")
	var calls atomic.Int64
	index := &mockGeoIndex{
		queryFn: func(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error) {
			if calls.Add(1) == 3 {
				return nil, errBoom
			}
			return nil, nil
		},
	}
	svc := newService(t, index)

	_, err := svc.Analyze(context.Background(), []domain.Leg{equatorLeg()}, 50)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected the sub-query error to surface, got %v", err)
	}
}

func TestAnalyze_QueryRadiusIsStepLengthInKm(t *testing.T) {
	var mu sync.Mutex
	var radii []float64
	index := &mockGeoIndex{
		queryFn: func(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error) {
			mu.Lock()
			radii = append(radii, radiusKm)
			mu.Unlock()
			return nil, nil
		},
	}
	svc := newService(t, index)

	if _, err := svc.Analyze(context.Background(), []domain.Leg{equatorLeg()}, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := geospatial.StepLength(50) / 1000
	mu.Lock()
	defer mu.Unlock()
	if len(radii) == 0 {
		t.Fatal("no queries issued")
	}
	for _, r := range radii {
		if math.Abs(r-want) > 1e-12 {
			t.Fatalf("query radius %v km, want %v km", r, want)
		}
	}
}

func TestAnalyze_PublishesCompletionEvent(t *testing.T) {
	index := &mockGeoIndex{entries: []domain.IndexMatch{
		{Key: "inside", Location: offsetFromMidpoint(40)},
	}}
	pub := &mockPublisher{}
	svc, err := usecases.NewAnalysisService(index, nil, pub, 0)
	if err != nil {
		t.Fatalf("NewAnalysisService: %v", err)
	}

	if _, err := svc.Analyze(context.Background(), []domain.Leg{equatorLeg()}, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.analyses) != 1 {
		t.Fatalf("expected 1 analysis event, got %d", len(pub.analyses))
	}
	evt := pub.analyses[0]
	if evt.AnalysisID == "" {
		t.Error("event missing analysis id")
	}
	if evt.Legs != 1 || evt.Matches != 1 {
		t.Errorf("event legs=%d matches=%d, want 1/1", evt.Legs, evt.Matches)
	}
	if evt.BufferWidthM != 50 {
		t.Errorf("event buffer width %v, want 50", evt.BufferWidthM)
	}
}

func TestAnalyzeRoute(t *testing.T) {
	routes := &mockRouteRepo{
		getBySlugFn: func(ctx context.Context, slug string) (*domain.Route, error) {
			return &domain.Route{
				Slug: slug,
				Name: "Test Corridor",
				Shape: domain.GeoLineString{Coordinates: []domain.GeoPoint{
					{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01},
				}},
			}, nil
		},
	}
	index := &mockGeoIndex{entries: []domain.IndexMatch{
		{Key: "inside", Location: offsetFromMidpoint(40)},
	}}
	svc, err := usecases.NewAnalysisService(index, routes, nil, 0)
	if err != nil {
		t.Fatalf("NewAnalysisService: %v", err)
	}

	result, route, err := svc.AnalyzeRoute(context.Background(), "test-corridor", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Slug != "test-corridor" {
		t.Errorf("route slug %q", route.Slug)
	}
	if len(result) != 1 || len(result[0].Matches) != 1 {
		t.Fatalf("expected 1 leg with 1 match, got %+v", result)
	}
}

func TestAnalyzeRoute_NoRepository(t *testing.T) {
	svc := newService(t, &mockGeoIndex{})
	_, _, err := svc.AnalyzeRoute(context.Background(), "any", 50)
	if !errors.Is(err, usecases.ErrRoutesUnavailable) {
		t.Fatalf("expected ErrRoutesUnavailable, got %v", err)
	}
}

func TestAnalyzeRoute_UnknownSlug(t *testing.T) {
	svc, err := usecases.NewAnalysisService(&mockGeoIndex{}, &mockRouteRepo{}, nil, 0)
	if err != nil {
		t.Fatalf("NewAnalysisService: %v", err)
	}
	_, _, err = svc.AnalyzeRoute(context.Background(), "ghost", 50)
	if !errors.Is(err, usecases.ErrRouteNotFound) {
		t.Fatalf("expected ErrRouteNotFound, got %v", err)
	}
}
