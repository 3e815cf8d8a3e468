package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/nextest/portal-auth/internal/apperr"
	"github.com/nextest/portal-auth/internal/http/response"
)

// Recoverer turns a handler panic into the internal error envelope.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recoverer(debugErrors bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.ErrorContext(r.Context(), "panic recovered",
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				response.Fail(w, r, apperr.Internal(fmt.Errorf("panic: %v", rec)), debugErrors)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
