package apis

import (
	"net/http"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/auth"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
)

type collectionRsp struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Alias       string   `json:"alias,omitempty"`
	CanRead     bool     `json:"can_read"`
	CanWrite    bool     `json:"can_write"`
	MediaTypes  []string `json:"media_types"`
}

type collectionsRsp struct {
	Collections []collectionRsp `json:"collections,omitempty"`
}

func newCollectionRsp(c *models.Collection, account *models.Account) collectionRsp {
	return collectionRsp{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Alias:       c.Alias,
		CanRead:     c.CanRead(account),
		CanWrite:    c.CanWrite(account),
		MediaTypes:  []string{httpx.MediaTypeSTIX},
	}
}

// getCollections lists the collections of the API root the caller can read or write.
func (a *API) getCollections(r *http.Request) (*httpx.Response, error) {
	root, err := a.apiRootFor(r)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()
	collections, aerr := a.db.GetCollections(ctx, root.ID)
	if aerr != nil {
		return nil, aerr
	}
	account := auth.AccountFromContext(ctx)
	rsp := collectionsRsp{}
	for i := range collections {
		c := newCollectionRsp(&collections[i], account)
		if c.CanRead || c.CanWrite {
			rsp.Collections = append(rsp.Collections, c)
		}
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Body:       rsp,
	}, nil
}

func (a *API) getCollection(r *http.Request) (*httpx.Response, error) {
	_, c, err := a.collectionFor(r, 0)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()
	rsp := newCollectionRsp(c, auth.AccountFromContext(ctx))
	if !rsp.CanRead && !rsp.CanWrite {
		return nil, denied(ctx)
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Body:       rsp,
	}, nil
}
