package memindex

import (
	"context"
	"sync"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/pkg/geospatial"
)

// Index is an in-process geo index: a guarded map scanned linearly with
// great-circle distances. It backs single-node deployments and tests. The
// scan is O(n) per query, which holds up well into the hundreds of
// thousands of entries before a Valkey or PostGIS backend pays off.
type Index struct {
	mu      sync.RWMutex
	entries map[string]domain.GeoPoint
}

func New() *Index {
	return &Index{entries: make(map[string]domain.GeoPoint)}
}

// QueryRadius returns every entry within radiusKm of center.
func (ix *Index) QueryRadius(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	radiusM := radiusKm * 1000

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var matches []domain.IndexMatch
	for key, loc := range ix.entries {
		if geospatial.Distance(center, loc) <= radiusM {
			matches = append(matches, domain.IndexMatch{Key: key, Location: loc})
		}
	}
	return matches, nil
}

func (ix *Index) Add(ctx context.Context, key string, location domain.GeoPoint) error {
	ix.mu.Lock()
	ix.entries[key] = location
	ix.mu.Unlock()
	return nil
}

func (ix *Index) AddBatch(ctx context.Context, entries []domain.Entry) error {
	ix.mu.Lock()
	for i := range entries {
		ix.entries[entries[i].Key] = entries[i].Location
	}
	ix.mu.Unlock()
	return nil
}

func (ix *Index) Remove(ctx context.Context, key string) error {
	ix.mu.Lock()
	delete(ix.entries, key)
	ix.mu.Unlock()
	return nil
}

func (ix *Index) Count(ctx context.Context) (int64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return int64(len(ix.entries)), nil
}
