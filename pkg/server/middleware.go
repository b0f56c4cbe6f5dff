package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/dd0wney/cluso-lobstore/pkg/auth"
	"github.com/dd0wney/cluso-lobstore/pkg/logging"
)

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs one line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

// credentialMiddleware copies the caller's credentials from the request
// headers into the context, where the import/export gate reads them. It
// does not reject anything itself: ungated operations stay open to all.
func (s *Server) credentialMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if header := r.Header.Get("Authorization"); header != "" {
			if token, ok := strings.CutPrefix(header, "Bearer "); ok {
				ctx = auth.WithToken(ctx, token)
			}
		}
		if key := r.Header.Get("X-API-Key"); key != "" {
			ctx = auth.WithAPIKey(ctx, key)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
