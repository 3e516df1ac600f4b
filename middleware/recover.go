package middleware

import (
	"net/http"
	"runtime/debug"

	"voicethoughts/pkg/logger"
	"voicethoughts/pkg/response"
)

// Recoverer turns a panicking handler into a generic 500.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Sugar.Errorw("Handler panicked",
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
