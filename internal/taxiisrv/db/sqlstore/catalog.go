package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/uuid"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/dberror"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
)

const apiRootColumns = `id, title, COALESCE(description, ''), is_default, is_public`

const collectionColumns = `id, api_root_id, title, COALESCE(description, ''), COALESCE(alias, ''), is_public, is_public_write`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIRoot(row rowScanner) (*models.APIRoot, error) {
	var r models.APIRoot
	if err := row.Scan(&r.ID, &r.Title, &r.Description, &r.IsDefault, &r.IsPublic); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanCollection(row rowScanner) (*models.Collection, error) {
	var c models.Collection
	if err := row.Scan(&c.ID, &c.APIRootID, &c.Title, &c.Description, &c.Alias, &c.IsPublic, &c.IsPublicWrite); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetAPIRoots returns all API roots ordered by id.
func (s *Store) GetAPIRoots(ctx context.Context) ([]models.APIRoot, apperrors.Error) {
	rows, err := s.pool.DB.QueryContext(ctx, `SELECT `+apiRootColumns+` FROM api_roots ORDER BY id`)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list api roots")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var roots []models.APIRoot
	for rows.Next() {
		r, err := scanAPIRoot(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan api root")
			return nil, dberror.ErrDatabase.Err(err)
		}
		roots = append(roots, *r)
	}
	if err := rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list api roots")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return roots, nil
}

// GetAPIRoot returns the API root with the given id, or nil if there is none.
func (s *Store) GetAPIRoot(ctx context.Context, id string) (*models.APIRoot, apperrors.Error) {
	row := s.pool.DB.QueryRowContext(ctx, s.rebind(`SELECT `+apiRootColumns+` FROM api_roots WHERE id = ?`), id)
	r, err := scanAPIRoot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Ctx(ctx).Debug().Str("api_root_id", id).Msg("api root not found")
			return nil, nil
		}
		log.Ctx(ctx).Error().Err(err).Str("api_root_id", id).Msg("failed to get api root")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return r, nil
}

// AddAPIRoot inserts root, generating an id when it has none. A default root replaces any
// existing default in the same transaction.
func (s *Store) AddAPIRoot(ctx context.Context, root *models.APIRoot) (err apperrors.Error) {
	if root == nil || root.Title == "" {
		return dberror.ErrInvalidInput.Msg("api root title is required")
	}
	if root.ID == "" {
		root.ID = uuid.NewString()
	}

	tx, finish, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer finish(&err)

	if root.IsDefault {
		// serialises concurrent default switches so each one sees the previous winner
		if errdb := s.pool.Dialect.LockTable(ctx, tx, "api_roots"); errdb != nil {
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to lock api roots")
			return dberror.ErrDatabase.Err(errdb)
		}
		if _, errdb := tx.ExecContext(ctx, s.rebind(`UPDATE api_roots SET is_default = ? WHERE is_default = ?`), false, true); errdb != nil {
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to clear default api root")
			return dberror.ErrDatabase.Err(errdb)
		}
	}

	_, errdb := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO api_roots (id, title, description, is_default, is_public)
		VALUES (?, ?, ?, ?, ?)`),
		root.ID, root.Title, root.Description, root.IsDefault, root.IsPublic)
	if errdb != nil {
		if s.pool.Dialect.IsUniqueViolation(errdb) {
			log.Ctx(ctx).Info().Str("api_root_id", root.ID).Msg("api root already exists")
			return dberror.ErrAlreadyExists.Msg("api root already exists")
		}
		log.Ctx(ctx).Error().Err(errdb).Str("api_root_id", root.ID).Msg("failed to insert api root")
		return dberror.ErrDatabase.Err(errdb)
	}
	return nil
}

// GetCollections returns the collections of an API root ordered by id.
func (s *Store) GetCollections(ctx context.Context, apiRootID string) ([]models.Collection, apperrors.Error) {
	rows, err := s.pool.DB.QueryContext(ctx,
		s.rebind(`SELECT `+collectionColumns+` FROM collections WHERE api_root_id = ? ORDER BY id`), apiRootID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("api_root_id", apiRootID).Msg("failed to list collections")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var collections []models.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan collection")
			return nil, dberror.ErrDatabase.Err(err)
		}
		collections = append(collections, *c)
	}
	if err := rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("api_root_id", apiRootID).Msg("failed to list collections")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return collections, nil
}

// GetCollection looks a collection up by id, then by alias, within an API root. It returns
// nil if neither matches.
func (s *Store) GetCollection(ctx context.Context, apiRootID, idOrAlias string) (*models.Collection, apperrors.Error) {
	return s.getCollection(ctx, s.pool.DB, apiRootID, idOrAlias)
}

func (s *Store) getCollection(ctx context.Context, q queryer, apiRootID, idOrAlias string) (*models.Collection, apperrors.Error) {
	for _, column := range []string{"id", "alias"} {
		row := q.QueryRowContext(ctx,
			s.rebind(`SELECT `+collectionColumns+` FROM collections WHERE api_root_id = ? AND `+column+` = ?`),
			apiRootID, idOrAlias)
		c, err := scanCollection(row)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			log.Ctx(ctx).Error().Err(err).Str("api_root_id", apiRootID).Str("collection", idOrAlias).Msg("failed to get collection")
			return nil, dberror.ErrDatabase.Err(err)
		}
	}
	log.Ctx(ctx).Debug().Str("api_root_id", apiRootID).Str("collection", idOrAlias).Msg("collection not found")
	return nil, nil
}

// AddCollection inserts c under its API root, generating an id when it has none.
func (s *Store) AddCollection(ctx context.Context, c *models.Collection) (err apperrors.Error) {
	if c == nil || c.Title == "" {
		return dberror.ErrInvalidInput.Msg("collection title is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	tx, finish, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer finish(&err)

	var exists int
	errdb := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM api_roots WHERE id = ?`), c.APIRootID).Scan(&exists)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("api_root_id", c.APIRootID).Msg("failed to check api root")
		return dberror.ErrDatabase.Err(errdb)
	}
	if exists == 0 {
		return dberror.ErrNotFound.Msg("api root not found")
	}

	var alias any
	if c.Alias != "" {
		alias = c.Alias
	}
	_, errdb = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO collections (id, api_root_id, title, description, alias, is_public, is_public_write)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.APIRootID, c.Title, c.Description, alias, c.IsPublic, c.IsPublicWrite)
	if errdb != nil {
		if s.pool.Dialect.IsUniqueViolation(errdb) {
			log.Ctx(ctx).Info().Str("collection_id", c.ID).Str("alias", c.Alias).Msg("collection already exists")
			return dberror.ErrAlreadyExists.Msg("collection id or alias already exists")
		}
		log.Ctx(ctx).Error().Err(errdb).Str("collection_id", c.ID).Msg("failed to insert collection")
		return dberror.ErrDatabase.Err(errdb)
	}
	return nil
}
