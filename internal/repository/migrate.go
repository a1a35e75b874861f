package repository

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every embedded migration that has not run yet, in
// filename order. Forward-only: there are no down-migrations.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		content, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}

		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (name) VALUES ($1)`, name,
		); err != nil {
			tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}
	}
	return nil
}

// Recreate drops the public schema and migrates from scratch. Destructive.
func (r *Repository) Recreate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DROP SCHEMA public CASCADE`); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	if _, err := r.db.Exec(ctx, `CREATE SCHEMA public`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return r.Migrate(ctx)
}

var migrationName = regexp.MustCompile(`^[a-z0-9_]+$`)

// CreateMigrationFile writes an empty NNNN_name.sql into dir, numbered
// after the highest existing migration. Used by the migrator CLI's `add`.
func CreateMigrationFile(dir, name string) (string, error) {
	if !migrationName.MatchString(name) {
		return "", fmt.Errorf("migration name %q: use lowercase letters, digits and underscores", name)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	next := 1
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), "%d_", &n); err == nil && n >= next {
			next = n + 1
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("%04d_%s.sql", next, name))
	if err := os.WriteFile(path, []byte("-- "+name+"\n"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
