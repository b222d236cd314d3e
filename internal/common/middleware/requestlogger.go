// Package middleware holds the HTTP middleware used by the TAXII server: request logging with
// request ids, panic recovery and per-request timeouts.
package middleware

import (
	"net/http"
	"time"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/logtrace"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/uuid"
	"github.com/rs/zerolog/log"
)

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-TAXII-Request-ID"

// RequestLogger attaches a request id and a request-scoped logger to the context and logs
// the start and completion of every request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := newRequestId()

		ctx := logtrace.WithRequestID(r.Context(), requestID)
		ctx = log.With().Str("request_id", requestID).Logger().WithContext(ctx)

		w.Header().Set(RequestIDHeader, requestID)
		rw := httpx.NewResponseWriter(w)

		log.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Str("remote_ip", r.RemoteAddr).
			Msg("incoming request")

		defer func() {
			log.Ctx(ctx).Info().
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

func newRequestId() string {
	u, err := uuid.NewRandom()
	if err != nil {
		return "req-" + time.Now().UTC().Format("20060102150405.000000000")
	}
	return u.String()
}
