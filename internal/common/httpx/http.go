// Package httpx provides the response and request plumbing shared by the TAXII handlers:
// a handler signature that returns a response or an error, JSON/TAXII response writers,
// bounded request body reading, and the TAXII error message format.
package httpx

import (
	"errors"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

const (
	// MediaTypeTAXII is the content type of every TAXII 2.1 resource.
	MediaTypeTAXII = "application/taxii+json;version=2.1"
	// MediaTypeSTIX is the media type advertised for stored STIX 2.1 objects.
	MediaTypeSTIX = "application/stix+json;version=2.1"
	// MediaTypeJSON is used for non-TAXII endpoints.
	MediaTypeJSON = "application/json"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is what a RequestHandler returns on success. Body is marshalled to JSON unless it
// is a []byte, in which case it is written verbatim.
type Response struct {
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        any
}

// RequestHandler handles a request and returns either a response or an error.
type RequestHandler func(r *http.Request) (*Response, error)

// WrapHttpRsp adapts a RequestHandler to http.HandlerFunc, translating errors into TAXII
// error messages.
func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			ErrorFrom(err).Send(w)
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		for k, values := range rsp.Headers {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
		if rsp.ContentType == "" {
			rsp.ContentType = MediaTypeTAXII
		}
		SendJsonRsp(w, r, rsp.StatusCode, rsp.ContentType, rsp.Body)
	}
}

// SendJsonRsp writes body as JSON with the given status code and content type.
func SendJsonRsp(w http.ResponseWriter, r *http.Request, statusCode int, contentType string, body any) {
	var payload []byte
	switch b := body.(type) {
	case []byte:
		payload = b
	case nil:
		payload = nil
	default:
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("unable to marshal response")
			ErrApplicationError().Send(w)
			return
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)
	if len(payload) > 0 {
		w.Write(payload)
	}
}

// ReadRequestBody reads at most limit bytes of the request body. A non-positive limit
// disables the bound.
func ReadRequestBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, ErrUnableToParseReqData()
	}
	body := r.Body
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrRequestTooLarge(limit)
		}
		log.Ctx(r.Context()).Error().Err(err).Msg("unable to read request body")
		return nil, ErrUnableToReadRequest()
	}
	if len(data) == 0 {
		return nil, ErrUnableToParseReqData()
	}
	return data, nil
}

// DecodeRequest unmarshals a JSON request body into v.
func DecodeRequest(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return ErrUnableToParseReqData()
	}
	return nil
}
