// Package sqlstore implements the catalog, the versioned object store and the ingestion job
// tracker on top of a dbmanager pool. Every operation runs in its own transaction; the store
// keeps no in-process state beyond its configuration and is safe for concurrent use.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/rs/zerolog/log"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/dberror"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/dbmanager"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
)

// JobRetention is how long completed jobs are kept before JobCleanup removes them.
const JobRetention = 24 * time.Hour

// snappyMarker prefixes compressed payloads. A JSON document never starts with a NUL byte,
// so stored rows can be read back whether or not compression was enabled when they were written.
const snappyMarker byte = 0x00

// Store is the SQL implementation of the TAXII persistence operations.
type Store struct {
	pool     *dbmanager.Pool
	now      func() time.Time
	compress bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for date_added, job timestamps and cleanup.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithCompression enables snappy compression of stored payloads.
func WithCompression(enabled bool) Option {
	return func(s *Store) {
		s.compress = enabled
	}
}

// New returns a store on an open, migrated pool.
func New(pool *dbmanager.Pool, opts ...Option) *Store {
	s := &Store{
		pool: pool,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.DB.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) timestamp() time.Time {
	return models.Timestamp(s.now())
}

func (s *Store) rebind(query string) string {
	return s.pool.Rebind(query)
}

func (s *Store) timeArg(t time.Time) any {
	return s.pool.Dialect.TimeArg(models.Timestamp(t))
}

// beginTx starts a transaction and returns a finish function that commits on success and
// rolls back otherwise. Callers defer finish(&err) with a named apperrors.Error result.
func (s *Store) beginTx(ctx context.Context) (*sql.Tx, func(*apperrors.Error), apperrors.Error) {
	tx, err := s.pool.BeginTx(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to start transaction")
		return nil, nil, dberror.ErrDatabase.Err(err)
	}
	finish := func(errp *apperrors.Error) {
		if *errp != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				log.Ctx(ctx).Error().Err(rollbackErr).Msg("failed to rollback transaction")
			}
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			log.Ctx(ctx).Error().Err(commitErr).Msg("failed to commit transaction")
			*errp = dberror.ErrDatabase.Err(commitErr)
		}
	}
	return tx, finish, nil
}

func (s *Store) encodePayload(data []byte) []byte {
	if !s.compress {
		return data
	}
	out := make([]byte, 1, 1+snappy.MaxEncodedLen(len(data)))
	out[0] = snappyMarker
	return append(out, snappy.Encode(nil, data)...)
}

func decodePayload(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != snappyMarker {
		return data, nil
	}
	return snappy.Decode(nil, data[1:])
}

// dbTime scans timestamp columns from either dialect: time.Time from PostgreSQL and fixed
// layout TEXT from SQLite.
type dbTime struct {
	t *time.Time
}

func (d dbTime) Scan(src any) error {
	t, err := parseDBTime(src)
	if err != nil {
		return err
	}
	*d.t = t
	return nil
}

// nullDBTime is dbTime for nullable columns.
type nullDBTime struct {
	t **time.Time
}

func (d nullDBTime) Scan(src any) error {
	if src == nil {
		*d.t = nil
		return nil
	}
	t, err := parseDBTime(src)
	if err != nil {
		return err
	}
	*d.t = &t
	return nil
}

func parseDBTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return models.Timestamp(v), nil
	case string:
		return parseTimeText(v)
	case []byte:
		return parseTimeText(string(v))
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp value %T", src)
}

func parseTimeText(s string) (time.Time, error) {
	t, err := time.Parse(dbmanager.SQLiteTimeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return models.Timestamp(t), nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
