package apis

import (
	"net/http"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
)

type discoveryRsp struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Contact     string   `json:"contact,omitempty"`
	Default     string   `json:"default,omitempty"`
	APIRoots    []string `json:"api_roots,omitempty"`
}

type apiRootRsp struct {
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Versions         []string `json:"versions"`
	MaxContentLength int64    `json:"max_content_length"`
}

func (a *API) getDiscovery(r *http.Request) (*httpx.Response, error) {
	roots, err := a.db.GetAPIRoots(r.Context())
	if err != nil {
		return nil, err
	}
	rsp := discoveryRsp{
		Title:       a.settings.Title,
		Description: a.settings.Description,
		Contact:     a.settings.Contact,
	}
	base := baseURL(r)
	for _, root := range roots {
		u := base + "/" + root.ID + "/"
		rsp.APIRoots = append(rsp.APIRoots, u)
		if root.IsDefault {
			rsp.Default = u
		}
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Body:       rsp,
	}, nil
}

func (a *API) getAPIRoot(r *http.Request) (*httpx.Response, error) {
	root, err := a.apiRootFor(r)
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Body: apiRootRsp{
			Title:            root.Title,
			Description:      root.Description,
			Versions:         []string{httpx.MediaTypeTAXII},
			MaxContentLength: a.settings.MaxRequestBodySize,
		},
	}, nil
}

// baseURL is the scheme and host the client used to reach the server.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host
}
