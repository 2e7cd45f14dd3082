package server

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/bytebin-io/bytebin/internal/metrics"
	"github.com/bytebin-io/bytebin/internal/ratelimit"
)

// StatusError carries an HTTP status code and a plain-text message through
// handler returns.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// NewStatusError creates a StatusError.
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

// writeError terminates a request with the error's status. Expected errors
// map to their code with a plain-text body; anything else gets a generic
// 404 so the endpoint leaks nothing, and is logged and counted.
func writeError(w http.ResponseWriter, req *http.Request, method string, err error) {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		writePlain(w, statusErr.Code, statusErr.Message)
	case errors.Is(err, ratelimit.ErrInvalidAPIKey):
		writePlain(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ratelimit.ErrRateLimited):
		metrics.RecordRejectedRequest(method, "rate_limited", req)
		writePlain(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Error().Err(err).Str("method", method).Str("path", req.URL.Path).Msg("error thrown by handler")
		metrics.UncaughtErrors.WithLabelValues("handler").Inc()
		writePlain(w, http.StatusNotFound, "Invalid path")
	}
}

func writePlain(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(message))
}
