package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/corridor/internal/adapters/valkey"
	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/core/ports"
	"github.com/samirrijal/corridor/internal/pkg/config"
	"github.com/samirrijal/corridor/internal/pkg/geospatial"
)

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load("corridor-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if len(os.Args) < 2 {
		log.Fatal("usage: ingestor <file.geojson> [more files...]")
	}
	files := os.Args[1:]

	// For the valkey backend, entries also go straight into the geo index:
	// bulk loads would flood JetStream with per-entry sync events.
	var ix ports.GeoIndexWriter
	if cfg.Corridor.IndexBackend == config.IndexBackendValkey {
		client, err := valkey.Connect(cfg.Valkey.Addr)
		if err != nil {
			log.Fatalf("valkey: %v", err)
		}
		defer client.Close()
		ix = valkey.NewGeoIndex(client, cfg.Corridor.GeoKey)
	}

	log.Printf("Corridor GeoJSON Ingestor: %d files", len(files))

	var wg sync.WaitGroup
	sem := make(chan struct{}, 4) // max 4 files in flight

	for _, path := range files {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ingestFile(ctx, pool, ix, p); err != nil {
				log.Printf("ERROR [%s]: %v", filepath.Base(p), err)
			}
		}(path)
	}

	wg.Wait()
	log.Println("ingestion complete")
}

// ---------------------------------------------------------------------------
// Per-file ingestion
// ---------------------------------------------------------------------------

func ingestFile(ctx context.Context, pool *pgxpool.Pool, ix ports.GeoIndexWriter, path string) error {
	name := filepath.Base(path)
	log.Printf("[%s] reading", name)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("parse feature collection: %w", err)
	}

	var points, lines, skipped []*geojson.Feature
	for _, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Point:
			points = append(points, f)
		case orb.LineString:
			lines = append(lines, f)
		default:
			skipped = append(skipped, f)
		}
	}
	if len(skipped) > 0 {
		log.Printf("[%s]   skipping %d features with unsupported geometry", name, len(skipped))
	}

	if err := ingestEntries(ctx, pool, ix, points, name); err != nil {
		return fmt.Errorf("entries: %w", err)
	}
	if err := ingestRoutes(ctx, pool, lines, name); err != nil {
		return fmt.Errorf("routes: %w", err)
	}

	log.Printf("[%s] done", name)
	return nil
}

// ---------------------------------------------------------------------------
// Point features → entries
// ---------------------------------------------------------------------------

func ingestEntries(ctx context.Context, pool *pgxpool.Pool, ix ports.GeoIndexWriter, features []*geojson.Feature, name string) error {
	const batchSize = 500
	batch := &pgx.Batch{}
	pending := make([]domain.Entry, 0, batchSize)
	now := time.Now().UTC()
	total := 0
	invalid := 0

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := flushBatch(ctx, pool, batch, len(pending)); err != nil {
			return err
		}
		if ix != nil {
			if err := ix.AddBatch(ctx, pending); err != nil {
				log.Printf("[%s]   index batch error (continuing): %v", name, err)
			}
		}
		batch = &pgx.Batch{}
		pending = pending[:0]
		return nil
	}

	for _, f := range features {
		pt := f.Geometry.(orb.Point)
		lat, lon := pt.Lat(), pt.Lon()
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			invalid++
			continue
		}

		key := featureKey(f)
		batch.Queue(`
			INSERT INTO entries (key, location, metadata, updated_at)
			VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4, $5)
			ON CONFLICT (key) DO UPDATE
			SET location = EXCLUDED.location, metadata = EXCLUDED.metadata,
			    updated_at = EXCLUDED.updated_at
		`, key, lon, lat, map[string]interface{}(f.Properties), now)
		pending = append(pending, domain.Entry{
			Key:      key,
			Location: domain.GeoPoint{Lat: lat, Lon: lon},
		})
		total++

		if len(pending) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if invalid > 0 {
		log.Printf("[%s]   skipped %d points with out-of-range coordinates", name, invalid)
	}
	log.Printf("[%s]   entries: %d", name, total)
	return nil
}

// ---------------------------------------------------------------------------
// LineString features → routes
// ---------------------------------------------------------------------------

func ingestRoutes(ctx context.Context, pool *pgxpool.Pool, features []*geojson.Feature, name string) error {
	total := 0
	for _, f := range features {
		line := f.Geometry.(orb.LineString)
		if len(line) < 2 {
			continue
		}

		slug := routeSlug(f)
		routeName, _ := f.Properties["name"].(string)
		if routeName == "" {
			routeName = slug
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO routes (id, slug, name, shape, length_m, created_at)
			VALUES ($1, $2, $3, ST_GeogFromText($4), $5, $6)
			ON CONFLICT (slug) DO UPDATE
			SET name = EXCLUDED.name, shape = EXCLUDED.shape, length_m = EXCLUDED.length_m
		`, uuid.NewString(), slug, routeName, lineWKT(line), lineLength(line), time.Now().UTC())
		if err != nil {
			log.Printf("[%s]   route %s error: %v", name, slug, err)
			continue
		}
		total++
	}

	log.Printf("[%s]   routes: %d", name, total)
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// featureKey prefers an explicit key property, then an id, then a fresh UUID.
func featureKey(f *geojson.Feature) string {
	if v, ok := f.Properties["key"].(string); ok && v != "" {
		return v
	}
	if v, ok := f.Properties["id"].(string); ok && v != "" {
		return v
	}
	if v, ok := f.ID.(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

func routeSlug(f *geojson.Feature) string {
	if v, ok := f.Properties["slug"].(string); ok && v != "" {
		return v
	}
	if v, ok := f.Properties["name"].(string); ok && v != "" {
		return slugify(v)
	}
	return "route-" + uuid.NewString()[:8]
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
	return strings.Trim(s, "-")
}

// lineWKT renders a GeoJSON line as EWKT; WKT coordinate order is lon lat.
func lineWKT(line orb.LineString) string {
	var sb strings.Builder
	sb.WriteString("SRID=4326;LINESTRING(")
	for i, p := range line {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "%f %f", p.Lon(), p.Lat())
	}
	sb.WriteString(")")
	return sb.String()
}

func lineLength(line orb.LineString) float64 {
	var total float64
	for i := 0; i < len(line)-1; i++ {
		total += geospatial.Distance(
			domain.GeoPoint{Lat: line[i].Lat(), Lon: line[i].Lon()},
			domain.GeoPoint{Lat: line[i+1].Lat(), Lon: line[i+1].Lon()},
		)
	}
	return total
}

func flushBatch(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch, count int) error {
	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < count; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	return nil
}
