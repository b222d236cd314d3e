// Package dbmanager opens the connection pool for the configured SQL backend and owns the
// per-dialect differences: placeholders, time encoding, constraint errors and schema.
package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DriverPostgres = "postgresql"
	DriverSQLite   = "sqlite"
)

// Config selects and tunes the backend.
type Config struct {
	Driver           string
	DSN              string
	MaxOpenConns     int
	StatementTimeout time.Duration
}

// Dialect hides the differences between the supported SQL backends. Queries are written with
// '?' placeholders and passed through Rebind before execution.
type Dialect interface {
	Name() string
	Rebind(query string) string
	// TimeArg converts a timestamp into the value bound for a timestamp column.
	TimeArg(t time.Time) any
	IsUniqueViolation(err error) bool
	// SetupTx applies per-transaction session limits.
	SetupTx(ctx context.Context, tx *sql.Tx) error
	// LockTable blocks concurrent writers of table until tx ends.
	LockTable(ctx context.Context, tx *sql.Tx, table string) error
	Migrations() []Migration
}

// Migration is one schema version: its statements run in order inside the migration transaction.
type Migration struct {
	Version    int
	Statements []string
}

// Pool is an open connection pool with the dialect of its backend.
type Pool struct {
	DB      *sql.DB
	Dialect Dialect
}

// Open opens and pings the pool for cfg.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	var (
		dialect    Dialect
		driverName string
	)
	switch cfg.Driver {
	case DriverPostgres:
		dialect = &postgresDialect{statementTimeout: cfg.StatementTimeout}
		driverName = "pgx"
	case DriverSQLite:
		dialect = &sqliteDialect{}
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("missing DSN for %s", cfg.Driver)
	}

	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("driver", cfg.Driver).Msg("failed to open db")
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 50
	}
	if cfg.Driver == DriverSQLite {
		// a single writer connection serialises transactions instead of failing them with SQLITE_BUSY
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(min(maxOpen, 10))
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		log.Ctx(ctx).Error().Err(err).Str("driver", cfg.Driver).Msg("failed to ping db")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{DB: sqlDB, Dialect: dialect}, nil
}

// Close closes the underlying pool.
func (p *Pool) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	return p.DB.Close()
}

// BeginTx starts a transaction with the dialect's session limits applied.
func (p *Pool) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := p.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	if err := p.Dialect.SetupTx(ctx, tx); err != nil {
		tx.Rollback()
		return nil, err
	}
	return tx, nil
}

// Rebind rewrites '?' placeholders for the pool's dialect.
func (p *Pool) Rebind(query string) string {
	return p.Dialect.Rebind(query)
}
