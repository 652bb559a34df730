// Package migrations manages Emonk's PostgreSQL schema. Migrations are
// embedded SQL files applied in filename order, each inside its own
// transaction, tracked in _emonk_migrations.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const trackingTable = "_emonk_migrations"

// Applied is one row of the tracking table.
type Applied struct {
	Name      string
	AppliedAt time.Time
}

// Runner applies migrations against a pool.
type Runner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	fsys   fs.FS
}

// NewRunner creates a Runner over the embedded migrations.
func NewRunner(pool *pgxpool.Pool, logger *slog.Logger) *Runner {
	return NewRunnerWithFS(pool, logger, embeddedMigrations)
}

// NewRunnerWithFS creates a Runner over an arbitrary fs; tests use this to
// exercise failure paths.
func NewRunnerWithFS(pool *pgxpool.Pool, logger *slog.Logger, fsys fs.FS) *Runner {
	return &Runner{pool: pool, logger: logger, fsys: fsys}
}

// Bootstrap creates the tracking table. Idempotent.
func (r *Runner) Bootstrap(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+trackingTable+` (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

// Run applies all unapplied migrations in filename order and returns how many
// were applied. A failing migration rolls back atomically and stops the run.
func (r *Runner) Run(ctx context.Context) (int, error) {
	entries, err := fs.Glob(r.fsys, "sql/*.sql")
	if err != nil {
		return 0, fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(entries)

	applied, err := r.appliedSet(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, path := range entries {
		name := path[len("sql/"):]
		if applied[name] {
			continue
		}
		if err := r.applyOne(ctx, path, name); err != nil {
			return count, err
		}
		r.logger.Info("migration applied", "name", name)
		count++
	}
	return count, nil
}

// GetApplied returns the applied migrations in application order.
func (r *Runner) GetApplied(ctx context.Context) ([]Applied, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, applied_at FROM `+trackingTable+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing applied migrations: %w", err)
	}
	defer rows.Close()

	out := []Applied{}
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Name, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Runner) appliedSet(ctx context.Context) (map[string]bool, error) {
	applied, err := r.GetApplied(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(applied))
	for _, a := range applied {
		set[a.Name] = true
	}
	return set, nil
}

func (r *Runner) applyOne(ctx context.Context, path, name string) error {
	sql, err := fs.ReadFile(r.fsys, path)
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", name, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction for %s: %w", name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("applying migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO `+trackingTable+` (name) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("recording migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing migration %s: %w", name, err)
	}
	return nil
}
