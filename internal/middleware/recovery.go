package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"rbac-auth/pkg/apierror"
)

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				slog.Error("panic recovered",
					"request_id", RequestIDFromContext(r.Context()),
					"error", fmt.Sprintf("%v", recovered),
					"stack", string(debug.Stack()),
				)
				writeAPIError(w, apierror.Internal("Unexpected server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
