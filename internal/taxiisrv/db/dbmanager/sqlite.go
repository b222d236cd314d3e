package dbmanager

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteTimeLayout is fixed width so that TEXT comparison orders timestamps chronologically.
const SQLiteTimeLayout = "2006-01-02T15:04:05.000000Z"

var sqlitePragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=foreign_keys(1)",
	"_pragma=journal_mode(WAL)",
}

// sqliteDSN appends the pragmas every connection needs, unless the caller already set them.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(sqlitePragmas, "&")
}

type sqliteDialect struct{}

func (d *sqliteDialect) Name() string {
	return DriverSQLite
}

func (d *sqliteDialect) Rebind(query string) string {
	return query
}

func (d *sqliteDialect) TimeArg(t time.Time) any {
	return t.UTC().Format(SQLiteTimeLayout)
}

func (d *sqliteDialect) IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}

func (d *sqliteDialect) SetupTx(context.Context, *sql.Tx) error {
	return nil
}

// LockTable is a no-op: a SQLite write transaction already excludes every other writer.
func (d *sqliteDialect) LockTable(context.Context, *sql.Tx, string) error {
	return nil
}

func (d *sqliteDialect) Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS api_roots (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL,
					description TEXT,
					is_default INTEGER NOT NULL DEFAULT 0,
					is_public INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE TABLE IF NOT EXISTS collections (
					id TEXT PRIMARY KEY,
					api_root_id TEXT NOT NULL REFERENCES api_roots(id) ON DELETE CASCADE,
					title TEXT NOT NULL,
					description TEXT,
					alias TEXT,
					is_public INTEGER NOT NULL DEFAULT 0,
					is_public_write INTEGER NOT NULL DEFAULT 0,
					UNIQUE (api_root_id, alias)
				)`,
				`CREATE TABLE IF NOT EXISTS stix_objects (
					collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
					id TEXT NOT NULL,
					type TEXT NOT NULL,
					spec_version TEXT NOT NULL,
					date_added TEXT NOT NULL,
					version TEXT NOT NULL,
					serialized_data BLOB NOT NULL,
					PRIMARY KEY (collection_id, id, version)
				)`,
				`CREATE INDEX IF NOT EXISTS stix_objects_paging_idx ON stix_objects (collection_id, date_added, id)`,
				`CREATE TABLE IF NOT EXISTS jobs (
					id TEXT PRIMARY KEY,
					api_root_id TEXT NOT NULL REFERENCES api_roots(id) ON DELETE CASCADE,
					status TEXT NOT NULL,
					request_timestamp TEXT NOT NULL,
					completed_timestamp TEXT,
					total_count INTEGER NOT NULL DEFAULT 0,
					success_count INTEGER NOT NULL DEFAULT 0,
					failure_count INTEGER NOT NULL DEFAULT 0,
					pending_count INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX IF NOT EXISTS jobs_completed_idx ON jobs (completed_timestamp)`,
				`CREATE TABLE IF NOT EXISTS job_details (
					id TEXT PRIMARY KEY,
					job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
					seq INTEGER NOT NULL,
					stix_id TEXT NOT NULL,
					version TEXT,
					message TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS job_details_job_idx ON job_details (job_id, seq)`,
			},
		},
		{
			Version: 2,
			Statements: []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS api_roots_single_default ON api_roots (is_default) WHERE is_default = 1`,
			},
		},
	}
}
