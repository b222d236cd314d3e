package sqlstore

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/dberror"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/metrics"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/versions"
)

var objectReader = rowReader[models.STIXObject]{
	columns: `collection_id, id, type, spec_version, date_added, version, serialized_data`,
	scan: func(row rowScanner) (models.STIXObject, groupKey, error) {
		var (
			o    models.STIXObject
			data []byte
		)
		if err := row.Scan(&o.CollectionID, &o.ID, &o.Type, &o.SpecVersion,
			dbTime{&o.DateAdded}, dbTime{&o.Version}, &data); err != nil {
			return o, groupKey{}, err
		}
		payload, err := decodePayload(data)
		if err != nil {
			return o, groupKey{}, err
		}
		o.SerializedData = payload
		return o, groupKey{dateAdded: o.DateAdded, id: o.ID}, nil
	},
}

var manifestReader = rowReader[models.ManifestRecord]{
	columns: `id, date_added, version, spec_version`,
	scan: func(row rowScanner) (models.ManifestRecord, groupKey, error) {
		var m models.ManifestRecord
		if err := row.Scan(&m.ID, dbTime{&m.DateAdded}, dbTime{&m.Version}, &m.SpecVersion); err != nil {
			return m, groupKey{}, err
		}
		return m, groupKey{dateAdded: m.DateAdded, id: m.ID}, nil
	},
}

var versionReader = rowReader[models.VersionRecord]{
	columns: `id, date_added, version`,
	scan: func(row rowScanner) (models.VersionRecord, groupKey, error) {
		var (
			v  models.VersionRecord
			id string
		)
		if err := row.Scan(&id, dbTime{&v.DateAdded}, dbTime{&v.Version}); err != nil {
			return v, groupKey{}, err
		}
		return v, groupKey{dateAdded: v.DateAdded, id: id}, nil
	},
}

// GetManifest returns one page of manifest records of the collection.
func (s *Store) GetManifest(ctx context.Context, collectionID string, params models.QueryParams) (page models.Page[models.ManifestRecord], err apperrors.Error) {
	defer metrics.ObserveSince("get_manifest", time.Now())

	tx, finish, err := s.beginTx(ctx)
	if err != nil {
		return page, err
	}
	defer finish(&err)

	sc := scope{collectionID: collectionID, params: params, plan: params.MatchVersion.Plan(), matchIDType: true}
	page, errdb := readPage(ctx, s, tx, sc, manifestReader)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("collection_id", collectionID).Msg("failed to read manifest")
		return page, dberror.ErrDatabase.Err(errdb)
	}
	return page, nil
}

// GetObjects returns one page of objects of the collection.
func (s *Store) GetObjects(ctx context.Context, collectionID string, params models.QueryParams) (page models.Page[models.STIXObject], err apperrors.Error) {
	defer metrics.ObserveSince("get_objects", time.Now())

	tx, finish, err := s.beginTx(ctx)
	if err != nil {
		return page, err
	}
	defer finish(&err)

	sc := scope{collectionID: collectionID, params: params, plan: params.MatchVersion.Plan(), matchIDType: true}
	page, errdb := readPage(ctx, s, tx, sc, objectReader)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("collection_id", collectionID).Msg("failed to read objects")
		return page, dberror.ErrDatabase.Err(errdb)
	}
	return page, nil
}

// GetObject returns one page of the versions of objectID selected by params. MatchID and
// MatchType are ignored. It returns nil when the collection holds no version of the object
// at all, and an empty page when versions exist but none match.
func (s *Store) GetObject(ctx context.Context, collectionID, objectID string, params models.QueryParams) (page *models.Page[models.STIXObject], err apperrors.Error) {
	defer metrics.ObserveSince("get_object", time.Now())

	tx, finish, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer finish(&err)

	exists, errdb := s.objectExists(ctx, tx, collectionID, objectID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("collection_id", collectionID).Str("object_id", objectID).Msg("failed to check object")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	if !exists {
		log.Ctx(ctx).Debug().Str("collection_id", collectionID).Str("object_id", objectID).Msg("object not found")
		return nil, nil
	}

	sc := scope{collectionID: collectionID, objectID: objectID, params: params, plan: params.MatchVersion.Plan()}
	p, errdb := readPage(ctx, s, tx, sc, objectReader)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("collection_id", collectionID).Str("object_id", objectID).Msg("failed to read object")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return &p, nil
}

// GetVersions returns one page of the version history of objectID. Every version is
// considered; only MatchSpecVersion filters. It returns nil for an unknown object.
func (s *Store) GetVersions(ctx context.Context, collectionID, objectID string, params models.QueryParams) (page *models.Page[models.VersionRecord], err apperrors.Error) {
	defer metrics.ObserveSince("get_versions", time.Now())

	tx, finish, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer finish(&err)

	exists, errdb := s.objectExists(ctx, tx, collectionID, objectID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("collection_id", collectionID).Str("object_id", objectID).Msg("failed to check object")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	if !exists {
		return nil, nil
	}

	sc := scope{collectionID: collectionID, objectID: objectID, params: params, plan: versions.Plan{All: true}}
	p, errdb := readPage(ctx, s, tx, sc, versionReader)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("collection_id", collectionID).Str("object_id", objectID).Msg("failed to read versions")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return &p, nil
}

// DeleteObject removes the versions of objectID matching both filters. An empty filter
// matches every version. Deleting an unknown object is not an error.
func (s *Store) DeleteObject(ctx context.Context, collectionID, objectID string, matchVersion versions.Selectors, matchSpecVersion []string) (err apperrors.Error) {
	defer metrics.ObserveSince("delete_object", time.Now())

	plan := versions.Plan{All: true}
	if len(matchVersion) > 0 {
		plan = matchVersion.Plan()
	}

	tx, finish, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer finish(&err)

	rows, errdb := tx.QueryContext(ctx,
		s.rebind(`SELECT version, spec_version FROM stix_objects WHERE collection_id = ? AND id = ?`),
		collectionID, objectID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("collection_id", collectionID).Str("object_id", objectID).Msg("failed to read object versions")
		return dberror.ErrDatabase.Err(errdb)
	}
	var (
		pairs        []versions.Pair
		specVersions = make(map[int64]string)
	)
	for rows.Next() {
		var (
			v  time.Time
			sv string
		)
		if errdb = rows.Scan(dbTime{&v}, &sv); errdb != nil {
			break
		}
		pairs = append(pairs, versions.Pair{ID: objectID, Version: v})
		specVersions[v.UnixMicro()] = sv
	}
	if errdb == nil {
		errdb = rows.Err()
	}
	rows.Close()
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("collection_id", collectionID).Str("object_id", objectID).Msg("failed to read object versions")
		return dberror.ErrDatabase.Err(errdb)
	}

	deleted := 0
	for _, pair := range plan.Resolve(pairs) {
		if len(matchSpecVersion) > 0 && !slices.Contains(matchSpecVersion, specVersions[pair.Version.UnixMicro()]) {
			continue
		}
		if _, errdb := tx.ExecContext(ctx,
			s.rebind(`DELETE FROM stix_objects WHERE collection_id = ? AND id = ? AND version = ?`),
			collectionID, objectID, s.timeArg(pair.Version)); errdb != nil {
			log.Ctx(ctx).Error().Err(errdb).Str("collection_id", collectionID).Str("object_id", objectID).Msg("failed to delete object version")
			return dberror.ErrDatabase.Err(errdb)
		}
		deleted++
	}
	log.Ctx(ctx).Info().Str("collection_id", collectionID).Str("object_id", objectID).Int("versions", deleted).Msg("deleted object versions")
	return nil
}
