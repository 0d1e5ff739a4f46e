package memindex_test

import (
	"context"
	"sync"
	"testing"

	"github.com/samirrijal/corridor/internal/adapters/memindex"
	"github.com/samirrijal/corridor/internal/core/domain"
)

func TestIndex_QueryRadius(t *testing.T) {
	ix := memindex.New()
	ctx := context.Background()

	// ~111 m apart per 0.001 degrees of latitude.
	_ = ix.Add(ctx, "near", domain.GeoPoint{Lat: 0.0005, Lon: 0})
	_ = ix.Add(ctx, "edge", domain.GeoPoint{Lat: 0.004, Lon: 0})
	_ = ix.Add(ctx, "far", domain.GeoPoint{Lat: 0.02, Lon: 0})

	matches, err := ix.QueryRadius(ctx, domain.GeoPoint{Lat: 0, Lon: 0}, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches within 500 m, got %d", len(matches))
	}
	keys := map[string]domain.GeoPoint{}
	for _, m := range matches {
		keys[m.Key] = m.Location
	}
	if _, ok := keys["near"]; !ok {
		t.Error("missing match near")
	}
	if _, ok := keys["edge"]; !ok {
		t.Error("missing match edge")
	}
	if got := keys["near"]; got != (domain.GeoPoint{Lat: 0.0005, Lon: 0}) {
		t.Errorf("match location %+v", got)
	}
}

func TestIndex_QueryRadius_Empty(t *testing.T) {
	ix := memindex.New()
	matches, err := ix.QueryRadius(context.Background(), domain.GeoPoint{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestIndex_QueryRadius_CanceledContext(t *testing.T) {
	ix := memindex.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ix.QueryRadius(ctx, domain.GeoPoint{}, 1); err == nil {
		t.Fatal("expected context error")
	}
}

func TestIndex_AddOverwritesAndRemove(t *testing.T) {
	ix := memindex.New()
	ctx := context.Background()

	_ = ix.Add(ctx, "k", domain.GeoPoint{Lat: 1, Lon: 1})
	_ = ix.Add(ctx, "k", domain.GeoPoint{Lat: 2, Lon: 2})

	count, err := ix.Count(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 entry after overwrite, got %d", count)
	}

	matches, _ := ix.QueryRadius(ctx, domain.GeoPoint{Lat: 2, Lon: 2}, 0.1)
	if len(matches) != 1 {
		t.Fatalf("expected the overwritten location to match, got %d results", len(matches))
	}

	if err := ix.Remove(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, _ = ix.Count(ctx)
	if count != 0 {
		t.Fatalf("expected empty index after remove, got %d", count)
	}
}

func TestIndex_AddBatch(t *testing.T) {
	ix := memindex.New()
	ctx := context.Background()

	entries := []domain.Entry{
		{Key: "a", Location: domain.GeoPoint{Lat: 1, Lon: 1}},
		{Key: "b", Location: domain.GeoPoint{Lat: 2, Lon: 2}},
		{Key: "c", Location: domain.GeoPoint{Lat: 3, Lon: 3}},
	}
	if err := ix.AddBatch(ctx, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, _ := ix.Count(ctx)
	if count != 3 {
		t.Fatalf("expected 3 entries, got %d", count)
	}
}

func TestIndex_ConcurrentAccess(t *testing.T) {
	ix := memindex.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			_ = ix.Add(ctx, key, domain.GeoPoint{Lat: float64(n) * 0.0001, Lon: 0})
			_, _ = ix.QueryRadius(ctx, domain.GeoPoint{}, 1)
		}(i)
	}
	wg.Wait()

	count, _ := ix.Count(ctx)
	if count != 8 {
		t.Fatalf("expected 8 entries, got %d", count)
	}
}
