package valkey

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/corridor/internal/core/domain"
)

// DefaultGeoKey is the geo set the index lives under when none is configured.
const DefaultGeoKey = "corridor:geo"

// GeoIndex answers radius queries from a Valkey geo set via GEOSEARCH.
// Valkey stores geo members in a sorted set of geohash scores, so removal
// goes through ZREM and counting through ZCARD. Latitudes beyond ±85.05°
// are not representable; polar data needs the PostGIS backend.
type GeoIndex struct {
	client valkey.Client
	key    string
}

// NewGeoIndex wraps an existing client. All entries live under one key.
func NewGeoIndex(client valkey.Client, key string) *GeoIndex {
	if key == "" {
		key = DefaultGeoKey
	}
	return &GeoIndex{client: client, key: key}
}

// QueryRadius returns every indexed entry within radiusKm of center.
func (ix *GeoIndex) QueryRadius(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error) {
	cmd := ix.client.B().Geosearch().Key(ix.key).
		Fromlonlat(center.Lon, center.Lat).
		Byradius(radiusKm).Km().
		Withcoord().
		Build()

	locs, err := ix.client.Do(ctx, cmd).AsGeosearch()
	if err != nil {
		return nil, fmt.Errorf("geosearch %s: %w", ix.key, err)
	}

	matches := make([]domain.IndexMatch, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, domain.IndexMatch{
			Key:      loc.Name,
			Location: domain.GeoPoint{Lat: loc.Latitude, Lon: loc.Longitude},
		})
	}
	return matches, nil
}

// Add indexes one entry, overwriting any previous location for the key.
func (ix *GeoIndex) Add(ctx context.Context, key string, location domain.GeoPoint) error {
	cmd := ix.client.B().Geoadd().Key(ix.key).
		LongitudeLatitudeMember().
		LongitudeLatitudeMember(location.Lon, location.Lat, key).
		Build()
	if err := ix.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("geoadd %s: %w", key, err)
	}
	return nil
}

// AddBatch indexes a batch of entries in a single GEOADD.
func (ix *GeoIndex) AddBatch(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	b := ix.client.B().Geoadd().Key(ix.key).
		LongitudeLatitudeMember().
		LongitudeLatitudeMember(entries[0].Location.Lon, entries[0].Location.Lat, entries[0].Key)
	for _, e := range entries[1:] {
		b = b.LongitudeLatitudeMember(e.Location.Lon, e.Location.Lat, e.Key)
	}
	if err := ix.client.Do(ctx, b.Build()).Error(); err != nil {
		return fmt.Errorf("geoadd batch of %d: %w", len(entries), err)
	}
	return nil
}

// Remove drops an entry from the index.
func (ix *GeoIndex) Remove(ctx context.Context, key string) error {
	cmd := ix.client.B().Zrem().Key(ix.key).Member(key).Build()
	if err := ix.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("zrem %s: %w", key, err)
	}
	return nil
}

// Count returns the number of indexed entries.
func (ix *GeoIndex) Count(ctx context.Context) (int64, error) {
	n, err := ix.client.Do(ctx, ix.client.B().Zcard().Key(ix.key).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", ix.key, err)
	}
	return n, nil
}
