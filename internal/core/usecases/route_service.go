package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/core/ports"
	"github.com/samirrijal/corridor/internal/pkg/geospatial"
	"github.com/samirrijal/corridor/internal/pkg/metrics"
)

var (
	ErrSlugRequired  = errors.New("route slug is required")
	ErrShapeTooShort = errors.New("route shape needs at least two points")
)

const routeCacheTTL = 10 * time.Minute

// RouteService manages stored corridor center-lines, so callers can analyze
// a named route without resending its geometry on every request.
type RouteService struct {
	repo  ports.RouteRepository
	cache ports.CacheService
}

// NewRouteService creates a new RouteService.
func NewRouteService(repo ports.RouteRepository, cache ports.CacheService) *RouteService {
	return &RouteService{repo: repo, cache: cache}
}

// Upsert stores a route, assigning an ID and recomputing its length.
func (s *RouteService) Upsert(ctx context.Context, route *domain.Route) error {
	if route == nil || route.Slug == "" {
		return ErrSlugRequired
	}
	if len(route.Shape.Coordinates) < 2 {
		return ErrShapeTooShort
	}
	if route.ID == "" {
		route.ID = uuid.NewString()
	}
	if route.CreatedAt.IsZero() {
		route.CreatedAt = time.Now().UTC()
	}
	route.LengthM = shapeLength(route.Shape)

	if err := s.repo.Upsert(ctx, route); err != nil {
		return fmt.Errorf("upserting route %s: %w", route.Slug, err)
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, fmt.Sprintf("routes:slug:%s", route.Slug))
	}
	return nil
}

// GetBySlug returns a stored route, or nil when the slug is unknown.
func (s *RouteService) GetBySlug(ctx context.Context, slug string) (*domain.Route, error) {
	if slug == "" {
		return nil, ErrSlugRequired
	}

	cacheKey := fmt.Sprintf("routes:slug:%s", slug)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			var route domain.Route
			if err := json.Unmarshal(cached, &route); err == nil {
				metrics.CacheHits.WithLabelValues("route").Inc()
				return &route, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("route").Inc()
	}

	route, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("fetching route %s: %w", slug, err)
	}
	if route == nil {
		return nil, nil
	}

	if s.cache != nil {
		if data, err := json.Marshal(route); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, routeCacheTTL)
		}
	}
	return route, nil
}

func (s *RouteService) List(ctx context.Context, limit, offset int) ([]domain.Route, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	routes, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing routes: %w", err)
	}
	return routes, total, nil
}

func (s *RouteService) Delete(ctx context.Context, slug string) error {
	if slug == "" {
		return ErrSlugRequired
	}
	if err := s.repo.Delete(ctx, slug); err != nil {
		return fmt.Errorf("deleting route %s: %w", slug, err)
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, fmt.Sprintf("routes:slug:%s", slug))
	}
	return nil
}

func shapeLength(shape domain.GeoLineString) float64 {
	var total float64
	for i := 0; i < len(shape.Coordinates)-1; i++ {
		total += geospatial.Distance(shape.Coordinates[i], shape.Coordinates[i+1])
	}
	return total
}
