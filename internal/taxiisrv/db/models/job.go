package models

import (
	"time"
)

/*
       Column        |           Type           | Nullable | Default
---------------------+--------------------------+----------+---------
 id                  | character varying(64)    | not null |
 api_root_id         | character varying(64)    | not null |
 status              | character varying(16)    | not null |
 request_timestamp   | timestamp with time zone | not null |
 completed_timestamp | timestamp with time zone |          |
 total_count         | integer                  | not null | 0
 success_count       | integer                  | not null | 0
 failure_count       | integer                  | not null | 0
 pending_count       | integer                  | not null | 0
*/

type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusComplete JobStatus = "complete"
)

type JobDetailStatus string

const (
	JobDetailSuccess JobDetailStatus = "success"
	JobDetailFailure JobDetailStatus = "failure"
	JobDetailPending JobDetailStatus = "pending"
)

// Job is the tracked outcome of one object submission.
type Job struct {
	ID                 string     `db:"id"`
	APIRootID          string     `db:"api_root_id"`
	Status             JobStatus  `db:"status"`
	RequestTimestamp   time.Time  `db:"request_timestamp"`
	CompletedTimestamp *time.Time `db:"completed_timestamp"`
	TotalCount         int        `db:"total_count"`
	SuccessCount       int        `db:"success_count"`
	FailureCount       int        `db:"failure_count"`
	PendingCount       int        `db:"pending_count"`
	Details            []JobDetail
}

// JobDetail is the outcome for one submitted object. Version is nil when the object could
// not be parsed far enough to know it.
type JobDetail struct {
	ID      string          `db:"id"`
	JobID   string          `db:"job_id"`
	STIXID  string          `db:"stix_id"`
	Version *time.Time      `db:"version"`
	Message string          `db:"message"`
	Status  JobDetailStatus `db:"status"`
}

// Tally recomputes the counters from the details.
func (j *Job) Tally() {
	j.TotalCount, j.SuccessCount, j.FailureCount, j.PendingCount = len(j.Details), 0, 0, 0
	for _, d := range j.Details {
		switch d.Status {
		case JobDetailSuccess:
			j.SuccessCount++
		case JobDetailFailure:
			j.FailureCount++
		case JobDetailPending:
			j.PendingCount++
		}
	}
}

// DetailsByStatus returns the details with the given status, in submission order.
func (j *Job) DetailsByStatus(status JobDetailStatus) []JobDetail {
	var out []JobDetail
	for _, d := range j.Details {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out
}
