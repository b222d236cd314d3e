package dbmanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

type postgresDialect struct {
	statementTimeout time.Duration
}

func (d *postgresDialect) Name() string {
	return DriverPostgres
}

// Rebind numbers '?' placeholders as $1, $2, ... leaving quoted literals alone.
func (d *postgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (d *postgresDialect) TimeArg(t time.Time) any {
	return t.UTC()
}

func (d *postgresDialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (d *postgresDialect) SetupTx(ctx context.Context, tx *sql.Tx) error {
	if d.statementTimeout <= 0 {
		return nil
	}
	value := pq.QuoteLiteral(strconv.FormatInt(d.statementTimeout.Milliseconds(), 10) + "ms")
	for _, param := range []string{"statement_timeout", "lock_timeout"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL %s = %s", param, value)); err != nil {
			return fmt.Errorf("failed to set %s: %w", param, err)
		}
	}
	return nil
}

func (d *postgresDialect) LockTable(ctx context.Context, tx *sql.Tx, table string) error {
	if _, err := tx.ExecContext(ctx, "LOCK TABLE "+pq.QuoteIdentifier(table)+" IN SHARE ROW EXCLUSIVE MODE"); err != nil {
		return fmt.Errorf("failed to lock %s: %w", table, err)
	}
	return nil
}

func (d *postgresDialect) Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS api_roots (
					id VARCHAR(64) PRIMARY KEY,
					title VARCHAR(256) NOT NULL,
					description TEXT,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					is_public BOOLEAN NOT NULL DEFAULT FALSE
				)`,
				`CREATE TABLE IF NOT EXISTS collections (
					id VARCHAR(64) PRIMARY KEY,
					api_root_id VARCHAR(64) NOT NULL REFERENCES api_roots(id) ON DELETE CASCADE,
					title VARCHAR(256) NOT NULL,
					description TEXT,
					alias VARCHAR(128),
					is_public BOOLEAN NOT NULL DEFAULT FALSE,
					is_public_write BOOLEAN NOT NULL DEFAULT FALSE,
					UNIQUE (api_root_id, alias)
				)`,
				`CREATE TABLE IF NOT EXISTS stix_objects (
					collection_id VARCHAR(64) NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
					id VARCHAR(256) NOT NULL,
					type VARCHAR(128) NOT NULL,
					spec_version VARCHAR(16) NOT NULL,
					date_added TIMESTAMPTZ NOT NULL,
					version TIMESTAMPTZ NOT NULL,
					serialized_data BYTEA NOT NULL,
					PRIMARY KEY (collection_id, id, version)
				)`,
				`CREATE INDEX IF NOT EXISTS stix_objects_paging_idx ON stix_objects (collection_id, date_added, id)`,
				`CREATE TABLE IF NOT EXISTS jobs (
					id VARCHAR(64) PRIMARY KEY,
					api_root_id VARCHAR(64) NOT NULL REFERENCES api_roots(id) ON DELETE CASCADE,
					status VARCHAR(16) NOT NULL,
					request_timestamp TIMESTAMPTZ NOT NULL,
					completed_timestamp TIMESTAMPTZ,
					total_count INTEGER NOT NULL DEFAULT 0,
					success_count INTEGER NOT NULL DEFAULT 0,
					failure_count INTEGER NOT NULL DEFAULT 0,
					pending_count INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX IF NOT EXISTS jobs_completed_idx ON jobs (completed_timestamp)`,
				`CREATE TABLE IF NOT EXISTS job_details (
					id VARCHAR(64) PRIMARY KEY,
					job_id VARCHAR(64) NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
					seq INTEGER NOT NULL,
					stix_id VARCHAR(256) NOT NULL,
					version TIMESTAMPTZ,
					message TEXT NOT NULL DEFAULT '',
					status VARCHAR(16) NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS job_details_job_idx ON job_details (job_id, seq)`,
			},
		},
		{
			Version: 2,
			Statements: []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS api_roots_single_default ON api_roots (is_default) WHERE is_default`,
			},
		},
	}
}
