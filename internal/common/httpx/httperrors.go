package httpx

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
)

// Error is a TAXII error message.
type Error struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StatusCode  int    `json:"-"`
}

type errorRsp struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	HTTPStatus  string `json:"http_status"`
}

// Send writes the error as a TAXII error message. A nil writer is ignored.
func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	rsp := errorRsp{
		Title:       e.Title,
		Description: e.Description,
		HTTPStatus:  strconv.Itoa(e.StatusCode),
	}
	payload, err := json.Marshal(rsp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", MediaTypeTAXII)
	w.WriteHeader(e.StatusCode)
	w.Write(payload)
}

func (e *Error) Error() string {
	if e.Description != "" {
		return e.Title + ": " + e.Description
	}
	return e.Title
}

// ErrorFrom converts any error into a TAXII error message. apperrors.Error keeps its status
// code (500 when unset); other errors become 500.
func ErrorFrom(err error) *Error {
	switch e := err.(type) {
	case *Error:
		return e
	case apperrors.Error:
		status := e.StatusCode()
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return &Error{
			Title:       http.StatusText(status),
			Description: e.ErrorAll(),
			StatusCode:  status,
		}
	default:
		return ErrApplicationError(err.Error())
	}
}

func newError(status int, desc []string, fallback string) *Error {
	d := fallback
	if len(desc) > 0 && desc[0] != "" {
		d = desc[0]
	}
	return &Error{
		Title:       http.StatusText(status),
		Description: d,
		StatusCode:  status,
	}
}

// ErrApplicationError is a 500 with an optional description.
func ErrApplicationError(desc ...string) *Error {
	return newError(http.StatusInternalServerError, desc, "unable to process request")
}

// ErrUnAuthorized is a 401.
func ErrUnAuthorized(desc ...string) *Error {
	return newError(http.StatusUnauthorized, desc, "authentication required")
}

// ErrForbidden is a 403.
func ErrForbidden(desc ...string) *Error {
	return newError(http.StatusForbidden, desc, "access denied")
}

// ErrNotFound is a 404.
func ErrNotFound(desc ...string) *Error {
	return newError(http.StatusNotFound, desc, "resource not found")
}

// ErrInvalidRequest is a 400.
func ErrInvalidRequest(desc ...string) *Error {
	return newError(http.StatusBadRequest, desc, "invalid request")
}

// ErrUnableToParseReqData is a 400 for bodies that are empty or not valid JSON.
func ErrUnableToParseReqData() *Error {
	return newError(http.StatusBadRequest, nil, "unable to parse request data")
}

// ErrUnableToReadRequest is a 400 for bodies that could not be read.
func ErrUnableToReadRequest() *Error {
	return newError(http.StatusBadRequest, nil, "unable to read request data")
}

// ErrRequestTimeout is a 408.
func ErrRequestTimeout() *Error {
	return newError(http.StatusRequestTimeout, nil, "request timed out")
}

// ErrRequestTooLarge is a 413.
func ErrRequestTooLarge(limit int64) *Error {
	return newError(http.StatusRequestEntityTooLarge, nil, fmt.Sprintf("request body too large (limit: %d bytes)", limit))
}
