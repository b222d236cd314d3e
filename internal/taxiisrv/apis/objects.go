package apis

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/stix"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/versions"
)

type manifestEntry struct {
	ID        string `json:"id"`
	DateAdded string `json:"date_added"`
	Version   string `json:"version"`
	MediaType string `json:"media_type"`
}

type manifestRsp struct {
	More    bool            `json:"more"`
	Next    string          `json:"next,omitempty"`
	Objects []manifestEntry `json:"objects,omitempty"`
}

type versionsRsp struct {
	More     bool     `json:"more"`
	Next     string   `json:"next,omitempty"`
	Versions []string `json:"versions,omitempty"`
}

func (a *API) getManifest(r *http.Request) (*httpx.Response, error) {
	_, c, err := a.collectionFor(r, accessRead)
	if err != nil {
		return nil, err
	}
	params, err := a.queryParams(r)
	if err != nil {
		return nil, err
	}
	page, aerr := a.db.GetManifest(r.Context(), c.ID, params)
	if aerr != nil {
		return nil, aerr
	}
	rsp := manifestRsp{More: page.More, Next: page.Next}
	for _, m := range page.Items {
		rsp.Objects = append(rsp.Objects, manifestEntry{
			ID:        m.ID,
			DateAdded: models.FormatTimestamp(m.DateAdded),
			Version:   models.FormatTimestamp(m.Version),
			MediaType: "application/stix+json;version=" + m.SpecVersion,
		})
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Headers:    dateAddedHeaders(page.Items),
		Body:       rsp,
	}, nil
}

func (a *API) getObjects(r *http.Request) (*httpx.Response, error) {
	_, c, err := a.collectionFor(r, accessRead)
	if err != nil {
		return nil, err
	}
	params, err := a.queryParams(r)
	if err != nil {
		return nil, err
	}
	page, aerr := a.db.GetObjects(r.Context(), c.ID, params)
	if aerr != nil {
		return nil, aerr
	}
	return objectsResponse(page)
}

func (a *API) getObject(r *http.Request) (*httpx.Response, error) {
	_, c, err := a.collectionFor(r, accessRead)
	if err != nil {
		return nil, err
	}
	params, err := a.queryParams(r)
	if err != nil {
		return nil, err
	}
	page, aerr := a.db.GetObject(r.Context(), c.ID, chi.URLParam(r, "objectID"), params)
	if aerr != nil {
		return nil, aerr
	}
	if page == nil {
		return nil, httpx.ErrNotFound("object not found")
	}
	return objectsResponse(*page)
}

func objectsResponse(page models.Page[models.STIXObject]) (*httpx.Response, error) {
	raw := make([]json.RawMessage, 0, len(page.Items))
	for _, o := range page.Items {
		raw = append(raw, o.SerializedData)
	}
	body, err := envelope(raw, page.More, page.Next)
	if err != nil {
		return nil, httpx.ErrApplicationError("unable to build envelope")
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Headers:    dateAddedHeaders(page.Items),
		Body:       body,
	}, nil
}

// addObjects ingests an envelope and answers with the status of the resulting job.
func (a *API) addObjects(r *http.Request) (*httpx.Response, error) {
	root, c, err := a.collectionFor(r, accessWrite)
	if err != nil {
		return nil, err
	}
	body, err := httpx.ReadRequestBody(nil, r, a.settings.MaxRequestBodySize)
	if err != nil {
		return nil, err
	}
	objects, err := stix.ParseEnvelope(body)
	if err != nil {
		return nil, err
	}
	job, aerr := a.db.AddObjects(r.Context(), root.ID, c.ID, objects)
	if aerr != nil {
		return nil, aerr
	}
	return &httpx.Response{
		StatusCode: http.StatusAccepted,
		Body:       newStatusRsp(job),
	}, nil
}

func (a *API) deleteObject(r *http.Request) (*httpx.Response, error) {
	_, c, err := a.collectionFor(r, accessRead|accessWrite)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()
	objectID := chi.URLParam(r, "objectID")
	q := r.URL.Query()
	matchVersion, err := versions.ParseList(q["match[version]"])
	if err != nil {
		return nil, err
	}
	existing, aerr := a.db.GetVersions(ctx, c.ID, objectID, models.QueryParams{Limit: 1})
	if aerr != nil {
		return nil, aerr
	}
	if existing == nil {
		return nil, httpx.ErrNotFound("object not found")
	}
	if aerr := a.db.DeleteObject(ctx, c.ID, objectID, matchVersion, listParam(q, "match[spec_version]")); aerr != nil {
		return nil, aerr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
	}, nil
}

func (a *API) getVersions(r *http.Request) (*httpx.Response, error) {
	_, c, err := a.collectionFor(r, accessRead)
	if err != nil {
		return nil, err
	}
	params, err := a.queryParams(r)
	if err != nil {
		return nil, err
	}
	page, aerr := a.db.GetVersions(r.Context(), c.ID, chi.URLParam(r, "objectID"), params)
	if aerr != nil {
		return nil, aerr
	}
	if page == nil {
		return nil, httpx.ErrNotFound("object not found")
	}
	rsp := versionsRsp{More: page.More, Next: page.Next}
	for _, v := range page.Items {
		rsp.Versions = append(rsp.Versions, models.FormatTimestamp(v.Version))
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Headers:    dateAddedHeaders(page.Items),
		Body:       rsp,
	}, nil
}
