package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/therapyflow/agent-surface/pkg/logging"
)

// RequestLogger emits one structured line per request once the response is
// written, carrying the status, bytes sent, and latency. Server faults log
// at warn so they stand out of the request stream.
//
// The response writer is wrapped with chi's proxy, which passes Hijacker
// through; the websocket feed upgrade keeps working behind this middleware.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				// Hijacked connections and handlers that never write a
				// header land here.
				status = http.StatusOK
			}

			log := logger.Info
			if status >= http.StatusInternalServerError {
				log = logger.Warn
			}
			log("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestID(r),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}

// requestID prefers the id minted by chi's RequestID middleware, then the
// client-supplied header, and mints one only when the logger runs alone.
func requestID(r *http.Request) string {
	if id := chimw.GetReqID(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
