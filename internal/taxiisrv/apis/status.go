package apis

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
)

type statusDetail struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
	Message string `json:"message,omitempty"`
}

type statusRsp struct {
	ID               string         `json:"id"`
	Status           string         `json:"status"`
	RequestTimestamp string         `json:"request_timestamp"`
	TotalCount       int            `json:"total_count"`
	SuccessCount     int            `json:"success_count"`
	FailureCount     int            `json:"failure_count"`
	PendingCount     int            `json:"pending_count"`
	Successes        []statusDetail `json:"successes,omitempty"`
	Failures         []statusDetail `json:"failures,omitempty"`
	Pendings         []statusDetail `json:"pendings,omitempty"`
}

func newStatusRsp(job *models.Job) statusRsp {
	return statusRsp{
		ID:               job.ID,
		Status:           string(job.Status),
		RequestTimestamp: models.FormatTimestamp(job.RequestTimestamp),
		TotalCount:       job.TotalCount,
		SuccessCount:     job.SuccessCount,
		FailureCount:     job.FailureCount,
		PendingCount:     job.PendingCount,
		Successes:        statusDetails(job.DetailsByStatus(models.JobDetailSuccess)),
		Failures:         statusDetails(job.DetailsByStatus(models.JobDetailFailure)),
		Pendings:         statusDetails(job.DetailsByStatus(models.JobDetailPending)),
	}
}

func statusDetails(details []models.JobDetail) []statusDetail {
	var out []statusDetail
	for _, d := range details {
		sd := statusDetail{ID: d.STIXID, Message: d.Message}
		if d.Version != nil {
			sd.Version = models.FormatTimestamp(*d.Version)
		}
		out = append(out, sd)
	}
	return out
}

func (a *API) getStatus(r *http.Request) (*httpx.Response, error) {
	root, err := a.apiRootFor(r)
	if err != nil {
		return nil, err
	}
	job, aerr := a.db.GetJobAndDetails(r.Context(), root.ID, chi.URLParam(r, "jobID"))
	if aerr != nil {
		return nil, aerr
	}
	if job == nil {
		return nil, httpx.ErrNotFound("job not found")
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Body:       newStatusRsp(job),
	}, nil
}
