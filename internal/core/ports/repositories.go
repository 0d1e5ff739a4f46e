package ports

import (
	"context"

	"github.com/samirrijal/corridor/internal/core/domain"
)

// GeoIndex is the radius-query capability the corridor engine runs against.
// QueryRadius returns every indexed entry within radiusKm of center. The
// radius is in kilometers regardless of backend. Implementations must
// deliver the complete matching set and release all per-call resources
// before returning; a call that returns has nothing left to cancel.
type GeoIndex interface {
	QueryRadius(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error)
}

// GeoIndexWriter mutates a queryable geo index.
type GeoIndexWriter interface {
	Add(ctx context.Context, key string, location domain.GeoPoint) error
	AddBatch(ctx context.Context, entries []domain.Entry) error
	Remove(ctx context.Context, key string) error
	Count(ctx context.Context) (int64, error)
}

// EntryRepository is the canonical entry store.
type EntryRepository interface {
	Upsert(ctx context.Context, entry *domain.Entry) error
	UpsertBatch(ctx context.Context, entries []domain.Entry) error
	GetByKey(ctx context.Context, key string) (*domain.Entry, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, limit, offset int) ([]domain.Entry, int, error)
	Stats(ctx context.Context) (*domain.EntryStats, error)
}

// RouteRepository persists stored corridor routes.
type RouteRepository interface {
	Upsert(ctx context.Context, route *domain.Route) error
	GetBySlug(ctx context.Context, slug string) (*domain.Route, error)
	List(ctx context.Context, limit, offset int) ([]domain.Route, int, error)
	ListSlugs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, slug string) error
}
