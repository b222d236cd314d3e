package dbmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Migrate brings the schema up to the latest version of the pool's dialect. All pending
// versions are applied in one transaction.
func Migrate(ctx context.Context, p *Pool) (err error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start migration: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				log.Ctx(ctx).Error().Err(rollbackErr).Msg("failed to rollback migration")
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range p.Dialect.Migrations() {
		if m.Version <= current {
			continue
		}
		for _, stmt := range m.Statements {
			if _, err = tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.Version, err)
			}
		}
		if _, err = tx.ExecContext(ctx, p.Rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"),
			m.Version, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		log.Ctx(ctx).Info().Int("version", m.Version).Str("dialect", p.Dialect.Name()).Msg("applied schema migration")
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// SchemaVersion returns the latest applied migration.
func SchemaVersion(ctx context.Context, p *Pool) (int, error) {
	var v int
	err := p.DB.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}
