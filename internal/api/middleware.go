// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clusterman/clusterman/internal/log"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware attaches a request ID to the context and response.
// A caller-supplied X-Request-ID is honored so IDs can be traced across
// services.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
	})
}

// statusRecorder captures the response status for logging and auditing.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// requestLogger logs every request and writes audit events for mutations.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str("event", "api.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Str("request_id", log.RequestIDFromContext(r.Context())).
			Msg("handled request")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			s.auditor.APIAccess(r.RemoteAddr, log.RequestIDFromContext(r.Context()), r.Method, r.URL.Path, rec.status)
		}
	})
}
