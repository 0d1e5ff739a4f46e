package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/corridor/internal/core/domain"
)

// EntryRepo implements ports.EntryRepository with pgx. The entries table is
// also queryable as a geo index through ST_DWithin, so in the postgres
// index configuration the canonical store and the index are one and the
// same and need no sync.
type EntryRepo struct {
	db *DB
}

// NewEntryRepo creates a new EntryRepo.
func NewEntryRepo(db *DB) *EntryRepo {
	return &EntryRepo{db: db}
}

// Upsert inserts or updates a single entry.
func (r *EntryRepo) Upsert(ctx context.Context, e *domain.Entry) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO entries (key, location, metadata, updated_at)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET location = EXCLUDED.location, metadata = EXCLUDED.metadata,
		    updated_at = EXCLUDED.updated_at
	`, e.Key, e.Location.Lon, e.Location.Lat, e.Metadata, e.UpdatedAt)
	return err
}

// UpsertBatch inserts many entries using pgx.Batch.
func (r *EntryRepo) UpsertBatch(ctx context.Context, entries []domain.Entry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO entries (key, location, metadata, updated_at)
			VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4, $5)
			ON CONFLICT (key) DO UPDATE
			SET location = EXCLUDED.location, metadata = EXCLUDED.metadata,
			    updated_at = EXCLUDED.updated_at
		`, e.Key, e.Location.Lon, e.Location.Lat, e.Metadata, e.UpdatedAt)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// GetByKey returns an entry, or nil when the key is unknown.
func (r *EntryRepo) GetByKey(ctx context.Context, key string) (*domain.Entry, error) {
	var e domain.Entry
	err := r.db.Pool.QueryRow(ctx, `
		SELECT key,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       COALESCE(metadata, '{}'), updated_at
		FROM entries WHERE key = $1
	`, key).Scan(&e.Key, &e.Location.Lat, &e.Location.Lon, &e.Metadata, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete removes an entry by key.
func (r *EntryRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM entries WHERE key = $1`, key)
	return err
}

// List returns a page of entries ordered by key, plus the total count.
func (r *EntryRepo) List(ctx context.Context, limit, offset int) ([]domain.Entry, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT key,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       COALESCE(metadata, '{}'), updated_at
		FROM entries ORDER BY key
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.Key, &e.Location.Lat, &e.Location.Lon, &e.Metadata, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM entries`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Stats returns the entry count and the most recent update time.
func (r *EntryRepo) Stats(ctx context.Context) (*domain.EntryStats, error) {
	var stats domain.EntryStats
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), MAX(updated_at) FROM entries
	`).Scan(&stats.Total, &stats.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// QueryRadius returns every entry within radiusKm of center, via ST_DWithin
// over the geography column and its GIST index.
func (r *EntryRepo) QueryRadius(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.IndexMatch, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT key,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon
		FROM entries
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
	`, center.Lon, center.Lat, radiusKm*1000)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.IndexMatch
	for rows.Next() {
		var m domain.IndexMatch
		if err := rows.Scan(&m.Key, &m.Location.Lat, &m.Location.Lon); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
