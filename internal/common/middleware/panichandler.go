package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	"github.com/rs/zerolog/log"
)

// PanicHandler recovers from handler panics, logs the stack and answers 500 if nothing has
// been written yet.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := httpx.NewResponseWriter(w)
		defer func() {
			if err := recover(); err != nil {
				log.Ctx(r.Context()).Error().
					Str("panic", fmt.Sprintf("%v", err)).
					Str("stack_trace", string(debug.Stack())).
					Msg("panic occurred")
				if !rw.Written() {
					httpx.ErrApplicationError().Send(rw)
				}
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
