package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/corridor/internal/core/domain"
)

// RouteRepo implements ports.RouteRepository. Shapes are stored as PostGIS
// geography line strings and read back as GeoJSON.
type RouteRepo struct {
	db *DB
}

func NewRouteRepo(db *DB) *RouteRepo { return &RouteRepo{db: db} }

func (r *RouteRepo) Upsert(ctx context.Context, route *domain.Route) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO routes (id, slug, name, shape, length_m, created_at)
		VALUES ($1, $2, $3, ST_GeogFromText($4), $5, $6)
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name, shape = EXCLUDED.shape, length_m = EXCLUDED.length_m
	`, route.ID, route.Slug, route.Name, lineWKT(route.Shape), route.LengthM, route.CreatedAt)
	return err
}

func (r *RouteRepo) GetBySlug(ctx context.Context, slug string) (*domain.Route, error) {
	var rt domain.Route
	var shapeJSON []byte
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, slug, name, ST_AsGeoJSON(shape::geometry), length_m, created_at
		FROM routes WHERE slug = $1
	`, slug).Scan(&rt.ID, &rt.Slug, &rt.Name, &shapeJSON, &rt.LengthM, &rt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	shape, err := decodeLineString(shapeJSON)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", slug, err)
	}
	rt.Shape = shape
	return &rt, nil
}

func (r *RouteRepo) List(ctx context.Context, limit, offset int) ([]domain.Route, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, slug, name, ST_AsGeoJSON(shape::geometry), length_m, created_at
		FROM routes ORDER BY slug
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var routes []domain.Route
	for rows.Next() {
		var rt domain.Route
		var shapeJSON []byte
		if err := rows.Scan(&rt.ID, &rt.Slug, &rt.Name, &shapeJSON, &rt.LengthM, &rt.CreatedAt); err != nil {
			return nil, 0, err
		}
		shape, err := decodeLineString(shapeJSON)
		if err != nil {
			return nil, 0, fmt.Errorf("route %s: %w", rt.Slug, err)
		}
		rt.Shape = shape
		routes = append(routes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM routes`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return routes, total, nil
}

func (r *RouteRepo) ListSlugs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT slug FROM routes ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

func (r *RouteRepo) Delete(ctx context.Context, slug string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM routes WHERE slug = $1`, slug)
	return err
}

// lineWKT renders a shape as EWKT for ST_GeogFromText. WKT coordinate order
// is lon lat.
func lineWKT(shape domain.GeoLineString) string {
	var b strings.Builder
	b.WriteString("SRID=4326;LINESTRING(")
	for i, p := range shape.Coordinates {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(p.Lon, 'f', -1, 64))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(p.Lat, 'f', -1, 64))
	}
	b.WriteByte(')')
	return b.String()
}

func decodeLineString(data []byte) (domain.GeoLineString, error) {
	geom, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return domain.GeoLineString{}, fmt.Errorf("decode shape: %w", err)
	}
	line, ok := geom.Geometry().(orb.LineString)
	if !ok {
		return domain.GeoLineString{}, fmt.Errorf("shape is %s, not a LineString", geom.Type)
	}
	coords := make([]domain.GeoPoint, len(line))
	for i, pt := range line {
		coords[i] = domain.GeoPoint{Lat: pt.Lat(), Lon: pt.Lon()}
	}
	return domain.GeoLineString{Coordinates: coords}, nil
}
