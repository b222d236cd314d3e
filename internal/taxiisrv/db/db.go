// Package db defines the persistence interfaces of the TAXII server and opens the SQL
// implementation behind them:
// - CatalogManager: API roots and collections
// - ObjectManager: the versioned object store and its paged queries
// - JobManager: ingestion jobs and their cleanup
package db

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/dbmanager"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/sqlstore"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/versions"
)

// CatalogManager reads and creates API roots and collections. Getters return nil, nil when
// the entity does not exist.
type CatalogManager interface {
	GetAPIRoots(ctx context.Context) ([]models.APIRoot, apperrors.Error)
	GetAPIRoot(ctx context.Context, id string) (*models.APIRoot, apperrors.Error)
	AddAPIRoot(ctx context.Context, root *models.APIRoot) apperrors.Error
	GetCollections(ctx context.Context, apiRootID string) ([]models.Collection, apperrors.Error)
	GetCollection(ctx context.Context, apiRootID, idOrAlias string) (*models.Collection, apperrors.Error)
	AddCollection(ctx context.Context, c *models.Collection) apperrors.Error
}

// ObjectManager queries and deletes stored objects. Pages are ordered by date_added then id.
type ObjectManager interface {
	GetManifest(ctx context.Context, collectionID string, params models.QueryParams) (models.Page[models.ManifestRecord], apperrors.Error)
	GetObjects(ctx context.Context, collectionID string, params models.QueryParams) (models.Page[models.STIXObject], apperrors.Error)
	GetObject(ctx context.Context, collectionID, objectID string, params models.QueryParams) (*models.Page[models.STIXObject], apperrors.Error)
	GetVersions(ctx context.Context, collectionID, objectID string, params models.QueryParams) (*models.Page[models.VersionRecord], apperrors.Error)
	DeleteObject(ctx context.Context, collectionID, objectID string, matchVersion versions.Selectors, matchSpecVersion []string) apperrors.Error
}

// JobManager ingests object batches and tracks their jobs.
type JobManager interface {
	AddObjects(ctx context.Context, apiRootID, collectionID string, objects []json.RawMessage) (*models.Job, apperrors.Error)
	GetJobAndDetails(ctx context.Context, apiRootID, jobID string) (*models.Job, apperrors.Error)
	JobCleanup(ctx context.Context) (int, apperrors.Error)
}

// Database is the full persistence surface of the server.
type Database interface {
	CatalogManager
	ObjectManager
	JobManager
	Ping(ctx context.Context) error
	Close() error
}

var _ Database = (*sqlstore.Store)(nil)

// Open connects to the configured backend, applies pending migrations and returns the store.
func Open(ctx context.Context, cfg dbmanager.Config, opts ...sqlstore.Option) (Database, error) {
	pool, err := dbmanager.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := dbmanager.Migrate(ctx, pool); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to migrate database")
		pool.Close()
		return nil, err
	}
	return sqlstore.New(pool, opts...), nil
}
