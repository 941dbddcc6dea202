package migration

import (
	"context"

	"hypocycle/internal/errors"

	"github.com/jmoiron/sqlx"
)

// MigrationRunner handles database schema migrations. The statements are
// portable between PostgreSQL and SQLite.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createSchemaMigrationsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create schema_migrations table")
	}

	if err := r.createAnalysisRecordsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create analysis_records table")
	}

	if err := r.createSampleSpecsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create sample_specs table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return r.recordVersion(ctx, db)
}

func (r *MigrationRunner) createSchemaMigrationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

func (r *MigrationRunner) createAnalysisRecordsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analysis_records (
			cycle_id TEXT PRIMARY KEY,
			hypothesis TEXT NOT NULL,
			trend_increasing BOOLEAN NOT NULL,
			conclusion TEXT NOT NULL,
			next_steps TEXT NOT NULL,
			results TEXT NOT NULL,
			ordering TEXT NOT NULL DEFAULT 'lexicographic',
			ordered_ids TEXT NOT NULL DEFAULT '[]',
			statistics TEXT,
			partial BOOLEAN NOT NULL DEFAULT FALSE,
			analyzed_at BIGINT NOT NULL
		)`)
	return err
}

// sample_specs is keyed by "<cycle_id>/<sample_id>" so concurrent cycles
// never collide.
func (r *MigrationRunner) createSampleSpecsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sample_specs (
			namespaced_id TEXT PRIMARY KEY,
			cycle_id TEXT NOT NULL,
			sample_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			schema_version TEXT NOT NULL,
			payload TEXT NOT NULL
		)`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_analysis_records_analyzed_at ON analysis_records(analyzed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sample_specs_cycle ON sample_specs(cycle_id, position)`,
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return err
		}
	}

	return nil
}

func (r *MigrationRunner) recordVersion(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO schema_migrations (version) VALUES (?)
		ON CONFLICT (version) DO NOTHING`), r.version)
	if err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	return nil
}
