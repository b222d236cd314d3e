package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/uuid"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/dberror"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/metrics"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/stix"
)

const jobColumns = `id, api_root_id, status, request_timestamp, completed_timestamp,
	total_count, success_count, failure_count, pending_count`

// AddObjects stores a batch of submitted objects in a collection and returns the completed
// job describing the outcome of each. Objects that fail to parse or store are recorded as
// failures without affecting the rest of the batch. The call fails as a whole only when the
// collection does not belong to the API root or the database is unavailable.
func (s *Store) AddObjects(ctx context.Context, apiRootID, collectionID string, objects []json.RawMessage) (job *models.Job, err apperrors.Error) {
	defer metrics.ObserveSince("add_objects", time.Now())

	tx, finish, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer finish(&err)

	var n int
	errdb := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM collections WHERE id = ? AND api_root_id = ?`),
		collectionID, apiRootID).Scan(&n)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("collection_id", collectionID).Msg("failed to check collection")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	if n == 0 {
		log.Ctx(ctx).Info().Str("api_root_id", apiRootID).Str("collection_id", collectionID).Msg("collection not found")
		return nil, dberror.ErrNotFound.Msg("collection not found")
	}

	job = &models.Job{
		ID:               uuid.NewString(),
		APIRootID:        apiRootID,
		Status:           models.JobStatusPending,
		RequestTimestamp: s.timestamp(),
	}
	_, errdb = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO jobs (id, api_root_id, status, request_timestamp, total_count, success_count, failure_count, pending_count)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0)`),
		job.ID, job.APIRootID, string(job.Status), s.timeArg(job.RequestTimestamp))
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("job_id", job.ID).Msg("failed to insert job")
		return nil, dberror.ErrDatabase.Err(errdb)
	}

	var lastAdded time.Time
	for seq, raw := range objects {
		detail := s.addObject(ctx, tx, collectionID, raw, &lastAdded)
		detail.ID = uuid.NewString()
		detail.JobID = job.ID

		var version any
		if detail.Version != nil {
			version = s.timeArg(*detail.Version)
		}
		_, errdb = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO job_details (id, job_id, seq, stix_id, version, message, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			detail.ID, detail.JobID, seq, detail.STIXID, version, detail.Message, string(detail.Status))
		if errdb != nil {
			log.Ctx(ctx).Error().Err(errdb).Str("job_id", job.ID).Msg("failed to insert job detail")
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		job.Details = append(job.Details, detail)
	}

	job.Tally()
	job.Status = models.JobStatusComplete
	completed := s.timestamp()
	job.CompletedTimestamp = &completed
	_, errdb = tx.ExecContext(ctx, s.rebind(`
		UPDATE jobs SET status = ?, completed_timestamp = ?,
			total_count = ?, success_count = ?, failure_count = ?, pending_count = ?
		WHERE id = ?`),
		string(job.Status), s.timeArg(completed),
		job.TotalCount, job.SuccessCount, job.FailureCount, job.PendingCount, job.ID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("job_id", job.ID).Msg("failed to complete job")
		return nil, dberror.ErrDatabase.Err(errdb)
	}

	metrics.JobsCreated.Inc()
	metrics.IngestedObjects.WithLabelValues(metrics.ResultSuccess).Add(float64(job.SuccessCount))
	metrics.IngestedObjects.WithLabelValues(metrics.ResultFailure).Add(float64(job.FailureCount))
	log.Ctx(ctx).Info().Str("job_id", job.ID).Str("collection_id", collectionID).
		Int("success", job.SuccessCount).Int("failure", job.FailureCount).Msg("objects added")
	return job, nil
}

// addObject stores one object inside a savepoint so that its failure leaves the rest of the
// transaction usable. lastAdded keeps date_added non-decreasing within the batch.
func (s *Store) addObject(ctx context.Context, tx *sql.Tx, collectionID string, raw json.RawMessage, lastAdded *time.Time) models.JobDetail {
	obj, perr := stix.ParseObject(raw)
	detail := models.JobDetail{Status: models.JobDetailFailure}
	if obj != nil {
		detail.STIXID = obj.ID
	}
	if perr != nil {
		detail.Message = perr.Error()
		return detail
	}
	version := obj.Version
	detail.Version = &version

	if _, err := tx.ExecContext(ctx, "SAVEPOINT stix_object"); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to create savepoint")
		detail.Message = "failed to store object"
		return detail
	}

	dateAdded := s.timestamp()
	if dateAdded.Before(*lastAdded) {
		dateAdded = *lastAdded
	}
	_, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO stix_objects (collection_id, id, type, spec_version, date_added, version, serialized_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection_id, id, version) DO NOTHING`),
		collectionID, obj.ID, obj.Type, obj.SpecVersion, s.timeArg(dateAdded), s.timeArg(obj.Version), s.encodePayload(raw))
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT stix_object"); rbErr != nil {
			log.Ctx(ctx).Error().Err(rbErr).Msg("failed to rollback to savepoint")
		}
		// a concurrent submission of the same version won the insert
		if s.pool.Dialect.IsUniqueViolation(err) {
			detail.Status = models.JobDetailSuccess
			return detail
		}
		log.Ctx(ctx).Error().Err(err).Str("stix_id", obj.ID).Msg("failed to insert object")
		detail.Message = "failed to store object"
		return detail
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT stix_object"); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to release savepoint")
	}
	*lastAdded = dateAdded
	detail.Status = models.JobDetailSuccess
	return detail
}

// GetJobAndDetails returns the job with its details in submission order, or nil if the API
// root has no such job.
func (s *Store) GetJobAndDetails(ctx context.Context, apiRootID, jobID string) (job *models.Job, err apperrors.Error) {
	tx, finish, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer finish(&err)

	job = &models.Job{}
	errdb := tx.QueryRowContext(ctx, s.rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ? AND api_root_id = ?`), jobID, apiRootID).
		Scan(&job.ID, &job.APIRootID, &job.Status, dbTime{&job.RequestTimestamp}, nullDBTime{&job.CompletedTimestamp},
			&job.TotalCount, &job.SuccessCount, &job.FailureCount, &job.PendingCount)
	if errdb != nil {
		if errors.Is(errdb, sql.ErrNoRows) {
			log.Ctx(ctx).Debug().Str("job_id", jobID).Msg("job not found")
			return nil, nil
		}
		log.Ctx(ctx).Error().Err(errdb).Str("job_id", jobID).Msg("failed to get job")
		return nil, dberror.ErrDatabase.Err(errdb)
	}

	rows, errdb := tx.QueryContext(ctx, s.rebind(`
		SELECT id, job_id, stix_id, version, message, status
		FROM job_details WHERE job_id = ? ORDER BY seq`), jobID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("job_id", jobID).Msg("failed to get job details")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()
	for rows.Next() {
		var d models.JobDetail
		if errdb := rows.Scan(&d.ID, &d.JobID, &d.STIXID, nullDBTime{&d.Version}, &d.Message, &d.Status); errdb != nil {
			log.Ctx(ctx).Error().Err(errdb).Str("job_id", jobID).Msg("failed to scan job detail")
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		job.Details = append(job.Details, d)
	}
	if errdb := rows.Err(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("job_id", jobID).Msg("failed to get job details")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return job, nil
}

// JobCleanup deletes jobs completed more than JobRetention ago together with their details,
// and returns how many jobs were removed. Pending jobs are never removed.
func (s *Store) JobCleanup(ctx context.Context) (removed int, err apperrors.Error) {
	defer metrics.ObserveSince("job_cleanup", time.Now())

	cutoff := s.timeArg(s.timestamp().Add(-JobRetention))

	tx, finish, err := s.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer finish(&err)

	_, errdb := tx.ExecContext(ctx, s.rebind(`
		DELETE FROM job_details WHERE job_id IN (
			SELECT id FROM jobs WHERE completed_timestamp IS NOT NULL AND completed_timestamp < ?
		)`), cutoff)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to delete job details")
		return 0, dberror.ErrDatabase.Err(errdb)
	}
	res, errdb := tx.ExecContext(ctx, s.rebind(`
		DELETE FROM jobs WHERE completed_timestamp IS NOT NULL AND completed_timestamp < ?`), cutoff)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to delete jobs")
		return 0, dberror.ErrDatabase.Err(errdb)
	}
	n, errdb := res.RowsAffected()
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to count deleted jobs")
		return 0, dberror.ErrDatabase.Err(errdb)
	}

	metrics.JobsCleaned.Add(float64(n))
	log.Ctx(ctx).Info().Int64("removed", n).Msg("cleaned up jobs")
	return int(n), nil
}
