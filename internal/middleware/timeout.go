package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"rbac-auth/pkg/apierror"
)

// Timeout bounds handler run time. Responses are buffered by
// http.TimeoutHandler, which is fine for the small JSON bodies served here.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(errorResponse(apierror.RequestTimeout()))
	message := string(body)

	return func(next http.Handler) http.Handler {
		th := http.TimeoutHandler(next, timeout, message)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			th.ServeHTTP(&jsonDefaultWriter{ResponseWriter: w}, r)
		})
	}
}

// jsonDefaultWriter labels bodies that arrive without a Content-Type as JSON.
// http.TimeoutHandler writes its timeout body without one.
type jsonDefaultWriter struct {
	http.ResponseWriter
}

func (w *jsonDefaultWriter) WriteHeader(status int) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *jsonDefaultWriter) Write(b []byte) (int, error) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	return w.ResponseWriter.Write(b)
}

func (w *jsonDefaultWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
