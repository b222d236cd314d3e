// Package apis implements the TAXII 2.1 REST endpoints on top of the persistence layer.
package apis

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db"
)

// Settings are the server-level values the endpoints report or enforce.
type Settings struct {
	Title              string
	Description        string
	Contact            string
	DefaultPageSize    int
	MaxPageSize        int
	MaxRequestBodySize int64
}

// API serves the TAXII endpoints from a database.
type API struct {
	db       db.Database
	settings Settings
}

func New(database db.Database, settings Settings) *API {
	return &API{db: database, settings: settings}
}

type handlerParam struct {
	Method  string
	Path    string
	Handler httpx.RequestHandler
}

func (a *API) handlers() []handlerParam {
	return []handlerParam{
		{Method: http.MethodGet, Path: "/taxii2/", Handler: a.getDiscovery},
		{Method: http.MethodGet, Path: "/{apiRoot}/", Handler: a.getAPIRoot},
		{Method: http.MethodGet, Path: "/{apiRoot}/status/{jobID}/", Handler: a.getStatus},
		{Method: http.MethodGet, Path: "/{apiRoot}/collections/", Handler: a.getCollections},
		{Method: http.MethodGet, Path: "/{apiRoot}/collections/{collectionID}/", Handler: a.getCollection},
		{Method: http.MethodGet, Path: "/{apiRoot}/collections/{collectionID}/manifest/", Handler: a.getManifest},
		{Method: http.MethodGet, Path: "/{apiRoot}/collections/{collectionID}/objects/", Handler: a.getObjects},
		{Method: http.MethodPost, Path: "/{apiRoot}/collections/{collectionID}/objects/", Handler: a.addObjects},
		{Method: http.MethodGet, Path: "/{apiRoot}/collections/{collectionID}/objects/{objectID}/", Handler: a.getObject},
		{Method: http.MethodDelete, Path: "/{apiRoot}/collections/{collectionID}/objects/{objectID}/", Handler: a.deleteObject},
		{Method: http.MethodGet, Path: "/{apiRoot}/collections/{collectionID}/objects/{objectID}/versions/", Handler: a.getVersions},
	}
}

// Router registers the TAXII endpoints on r.
func (a *API) Router(r chi.Router) {
	for _, h := range a.handlers() {
		r.Method(h.Method, h.Path, httpx.WrapHttpRsp(h.Handler))
	}
}
