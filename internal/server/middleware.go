package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bytebin-io/bytebin/internal/metrics"
	"github.com/bytebin-io/bytebin/internal/ratelimit"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLogging tags each request with an id and logs its outcome.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, req)

		log.Debug().
			Str("request_id", requestID).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("ip", ratelimit.ClientIP(req)).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// panicRecovery converts handler panics into a generic 404 response so the
// endpoint leaks nothing about internal failures.
func panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Msg("panic in request handler")
				metrics.UncaughtErrors.WithLabelValues("panic").Inc()
				writePlain(w, http.StatusNotFound, "Invalid path")
			}
		}()
		next.ServeHTTP(w, req)
	})
}

// corsPolicy describes the cross-origin surface of a route group.
type corsPolicy struct {
	methods string
	headers string
}

var (
	corsPost = corsPolicy{
		methods: "POST,PUT",
		headers: "Content-Type,Accept,Origin,Content-Encoding,Allow-Modification",
	}
	corsContent = corsPolicy{
		methods: "GET,PUT",
		headers: "Content-Type,Accept,Origin,Content-Encoding,Authorization",
	}
)

func (p corsPolicy) apply(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func (p corsPolicy) preflight(w http.ResponseWriter, req *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", p.methods)
	h.Set("Access-Control-Allow-Headers", p.headers)
	h.Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusOK)
}
