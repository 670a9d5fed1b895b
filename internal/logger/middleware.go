package logger

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestLogger logs every request as a structured record and keeps the HTTP
// counters up to date. Requests slower than slow are counted and logged as
// warnings; zero disables the check.
func RequestLogger(slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				elapsed := time.Since(start)
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				args := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", elapsed.Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
					"remote", r.RemoteAddr,
				}

				switch {
				case status >= 500:
					ErrorHttp5xx()
					Logger.Error("request failed", args...)
				case status >= 400:
					WarnHttp4xx(status)
					Debug("request rejected", args...)
				default:
					Debug("request", args...)
				}

				if slow > 0 && elapsed > slow {
					WarnSlowRequest()
					Logger.Warn("slow request", args...)
				}
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
