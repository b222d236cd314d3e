package apis

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/auth"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
)

type accessMode int

const (
	accessRead accessMode = 1 << iota
	accessWrite
)

// denied is 401 for anonymous requests and 403 for authenticated ones.
func denied(ctx context.Context) error {
	if auth.AccountFromContext(ctx) == nil {
		return httpx.ErrUnAuthorized()
	}
	return httpx.ErrForbidden()
}

// apiRootFor resolves the {apiRoot} path parameter. Non-public roots need an account.
func (a *API) apiRootFor(r *http.Request) (*models.APIRoot, error) {
	ctx := r.Context()
	root, err := a.db.GetAPIRoot(ctx, chi.URLParam(r, "apiRoot"))
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, httpx.ErrNotFound("api root not found")
	}
	if !root.IsPublic && auth.AccountFromContext(ctx) == nil {
		return nil, httpx.ErrUnAuthorized()
	}
	return root, nil
}

// collectionFor resolves the {collectionID} path parameter, by id or alias, and checks that
// the account holds every access in mode.
func (a *API) collectionFor(r *http.Request, mode accessMode) (*models.APIRoot, *models.Collection, error) {
	root, err := a.apiRootFor(r)
	if err != nil {
		return nil, nil, err
	}
	ctx := r.Context()
	c, aerr := a.db.GetCollection(ctx, root.ID, chi.URLParam(r, "collectionID"))
	if aerr != nil {
		return nil, nil, aerr
	}
	if c == nil {
		return nil, nil, httpx.ErrNotFound("collection not found")
	}
	account := auth.AccountFromContext(ctx)
	if mode&accessRead != 0 && !c.CanRead(account) {
		return nil, nil, denied(ctx)
	}
	if mode&accessWrite != 0 && !c.CanWrite(account) {
		return nil, nil, denied(ctx)
	}
	return root, c, nil
}
