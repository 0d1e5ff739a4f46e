package usecases_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/core/usecases"
)

func testShape() domain.GeoLineString {
	return domain.GeoLineString{Coordinates: []domain.GeoPoint{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01},
	}}
}

func TestRouteService_Upsert(t *testing.T) {
	var stored *domain.Route
	repo := &mockRouteRepo{
		upsertFn: func(ctx context.Context, route *domain.Route) error {
			stored = route
			return nil
		},
	}
	svc := usecases.NewRouteService(repo, nil)

	route := &domain.Route{Slug: "old-harbor", Name: "Old Harbor Line", Shape: testShape()}
	if err := svc.Upsert(context.Background(), route); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored == nil {
		t.Fatal("route not stored")
	}
	if stored.ID == "" {
		t.Error("route id not assigned")
	}
	// One hundredth of a degree of longitude at the equator is ~1112 m.
	if math.Abs(stored.LengthM-1111.95) > 1 {
		t.Errorf("route length %v m, want ~1111.95 m", stored.LengthM)
	}
	if stored.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestRouteService_Upsert_Validation(t *testing.T) {
	svc := usecases.NewRouteService(&mockRouteRepo{}, nil)

	if err := svc.Upsert(context.Background(), &domain.Route{Shape: testShape()}); !errors.Is(err, usecases.ErrSlugRequired) {
		t.Fatalf("expected ErrSlugRequired, got %v", err)
	}

	short := &domain.Route{Slug: "stub", Shape: domain.GeoLineString{Coordinates: []domain.GeoPoint{{Lat: 1, Lon: 1}}}}
	if err := svc.Upsert(context.Background(), short); !errors.Is(err, usecases.ErrShapeTooShort) {
		t.Fatalf("expected ErrShapeTooShort, got %v", err)
	}
}

func TestRouteService_Upsert_InvalidatesCache(t *testing.T) {
	cache := newMockCache()
	cache.store["routes:slug:old-harbor"] = []byte("{}")
	svc := usecases.NewRouteService(&mockRouteRepo{}, cache)

	route := &domain.Route{Slug: "old-harbor", Shape: testShape()}
	if err := svc.Upsert(context.Background(), route); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cache.store["routes:slug:old-harbor"]; ok {
		t.Error("stale cached route survived upsert")
	}
}

func TestRouteService_GetBySlug_CachesResult(t *testing.T) {
	repoCalls := 0
	repo := &mockRouteRepo{
		getBySlugFn: func(ctx context.Context, slug string) (*domain.Route, error) {
			repoCalls++
			return &domain.Route{Slug: slug, Shape: testShape()}, nil
		},
	}
	svc := usecases.NewRouteService(repo, newMockCache())

	for i := 0; i < 3; i++ {
		route, err := svc.GetBySlug(context.Background(), "old-harbor")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if route == nil || route.Slug != "old-harbor" {
			t.Fatalf("unexpected route %+v", route)
		}
	}
	if repoCalls != 1 {
		t.Errorf("repository hit %d times, want 1", repoCalls)
	}
}

func TestRouteService_GetBySlug_EmptySlug(t *testing.T) {
	svc := usecases.NewRouteService(&mockRouteRepo{}, nil)
	if _, err := svc.GetBySlug(context.Background(), ""); !errors.Is(err, usecases.ErrSlugRequired) {
		t.Fatalf("expected ErrSlugRequired, got %v", err)
	}
}

func TestRouteService_List_ClampsLimit(t *testing.T) {
	var gotLimit int
	repo := &mockRouteRepo{
		listFn: func(ctx context.Context, limit, offset int) ([]domain.Route, int, error) {
			gotLimit = limit
			return nil, 0, nil
		},
	}
	svc := usecases.NewRouteService(repo, nil)

	if _, _, err := svc.List(context.Background(), -1, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 50 {
		t.Errorf("limit %d, want clamped to 50", gotLimit)
	}
}

func TestRouteService_Delete_InvalidatesCache(t *testing.T) {
	deleted := false
	repo := &mockRouteRepo{
		deleteFn: func(ctx context.Context, slug string) error {
			deleted = true
			return nil
		},
	}
	cache := newMockCache()
	cache.store["routes:slug:old-harbor"] = []byte("{}")
	svc := usecases.NewRouteService(repo, cache)

	if err := svc.Delete(context.Background(), "old-harbor"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("repository delete not called")
	}
	if _, ok := cache.store["routes:slug:old-harbor"]; ok {
		t.Error("cached route not invalidated")
	}
}
