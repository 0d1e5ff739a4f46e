package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/corridor/internal/pkg/config"
)

const migrationsDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|status>")
	}

	cfg, err := config.Load("corridor-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := ensureVersionTable(ctx, pool); err != nil {
		log.Fatalf("version table: %v", err)
	}

	switch os.Args[1] {
	case "up":
		err = migrateUp(ctx, pool)
	case "down":
		err = migrateDown(ctx, pool)
	case "status":
		err = printStatus(ctx, pool)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
	if err != nil {
		log.Fatal(err)
	}
}

func ensureVersionTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

// upFiles returns forward migrations in apply order. Rollback scripts share
// the version name with a .down.sql suffix and are excluded here.
func upFiles() ([]string, error) {
	all, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, f := range all {
		if !strings.HasSuffix(f, ".down.sql") {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files, nil
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func migrateUp(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := upFiles()
	if err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return err
	}

	ran := 0
	for _, f := range files {
		version := versionOf(f)
		if applied[version] {
			continue
		}
		sql, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if err := applyTx(ctx, pool, string(sql), `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}
		log.Printf("applied %s", version)
		ran++
	}
	if ran == 0 {
		log.Println("nothing to apply")
	}
	return nil
}

// migrateDown rolls back the most recently applied migration using its
// .down.sql counterpart.
func migrateDown(ctx context.Context, pool *pgxpool.Pool) error {
	var version string
	err := pool.QueryRow(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Println("nothing to roll back")
		return nil
	}
	if err != nil {
		return err
	}

	downFile := filepath.Join(migrationsDir, version+".down.sql")
	sql, err := os.ReadFile(downFile)
	if err != nil {
		return fmt.Errorf("no down script for %s: %w", version, err)
	}
	if err := applyTx(ctx, pool, string(sql), `DELETE FROM schema_migrations WHERE version = $1`, version); err != nil {
		return fmt.Errorf("roll back %s: %w", version, err)
	}
	log.Printf("rolled back %s", version)
	return nil
}

// applyTx runs the migration SQL and its bookkeeping statement in one
// transaction so a failed script never records as applied.
func applyTx(ctx context.Context, pool *pgxpool.Pool, sql, bookkeeping, version string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, sql); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, bookkeeping, version); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func printStatus(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := upFiles()
	if err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return err
	}
	for _, f := range files {
		version := versionOf(f)
		state := "pending"
		if applied[version] {
			state = "applied"
		}
		fmt.Printf("%-8s %s\n", state, version)
	}
	return nil
}

// versionOf maps migrations/002_core_tables.sql to 002_core_tables.
func versionOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".sql")
}
