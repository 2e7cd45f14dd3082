// Package server implements the HTTP surface: content submission, retrieval,
// modification, bulk deletion and the operational endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bytebin-io/bytebin/internal/cache"
	"github.com/bytebin-io/bytebin/internal/content"
	"github.com/bytebin-io/bytebin/internal/logsink"
	"github.com/bytebin-io/bytebin/internal/metrics"
	"github.com/bytebin-io/bytebin/internal/ratelimit"
	"github.com/bytebin-io/bytebin/internal/storage"
)

// Options configures the HTTP server and carries its collaborators.
type Options struct {
	Host             string
	Port             int
	KeyLength        int
	MaxContentLength int
	MetricsEnabled   bool
	HostAliases      map[string]string
	AdminAPIKeys     []string

	Loader        cache.Loader
	Storage       *storage.Coordinator
	RateLimits    *ratelimit.Handler
	PostLimiter   ratelimit.RateLimiter
	UpdateLimiter ratelimit.RateLimiter
	ReadLimiter   ratelimit.RateLimiter

	// NotFoundLimiter throttles clients that repeatedly request keys that
	// do not exist.
	NotFoundLimiter ratelimit.RateLimiter

	ExpiryPolicy *ExpiryPolicy
	LogSink      logsink.Handler
}

// Server is the bytebin HTTP server.
type Server struct {
	httpServer *http.Server

	maxContentLength int
	hostAliases      map[string]string
	adminAPIKeys     map[string]struct{}

	tokens        *content.TokenGenerator
	loader        cache.Loader
	storage       *storage.Coordinator
	rateLimits    *ratelimit.Handler
	postLimiter   ratelimit.RateLimiter
	updateLimiter ratelimit.RateLimiter
	readLimiter   ratelimit.RateLimiter
	notFound      ratelimit.RateLimiter
	expiryPolicy  *ExpiryPolicy
	logSink       logsink.Handler
}

// New creates the server and registers its routes.
func New(opts Options) (*Server, error) {
	tokens, err := content.NewTokenGenerator(opts.KeyLength)
	if err != nil {
		return nil, fmt.Errorf("creating token generator: %w", err)
	}

	adminKeys := make(map[string]struct{}, len(opts.AdminAPIKeys))
	for _, k := range opts.AdminAPIKeys {
		adminKeys[k] = struct{}{}
	}

	s := &Server{
		maxContentLength: opts.MaxContentLength,
		hostAliases:      opts.HostAliases,
		adminAPIKeys:     adminKeys,
		tokens:           tokens,
		loader:           opts.Loader,
		storage:          opts.Storage,
		rateLimits:       opts.RateLimits,
		postLimiter:      opts.PostLimiter,
		updateLimiter:    opts.UpdateLimiter,
		readLimiter:      opts.ReadLimiter,
		notFound:         opts.NotFoundLimiter,
		expiryPolicy:     opts.ExpiryPolicy,
		logSink:          opts.LogSink,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /post", s.handle("POST", corsPost, s.handlePost))
	mux.HandleFunc("PUT /post", s.handle("PUT", corsPost, s.handlePost))
	mux.HandleFunc("OPTIONS /post", corsPost.preflight)

	mux.HandleFunc("GET /{id}", s.handle("GET", corsContent, s.handleGet))
	mux.HandleFunc("PUT /{id}", s.handle("PUT", corsContent, s.handleUpdate))
	mux.HandleFunc("OPTIONS /{id}", corsContent.preflight)

	mux.HandleFunc("POST /admin/bulkdelete", s.handle("POST", corsPolicy{}, s.handleBulkDelete))

	mux.HandleFunc("GET /health", s.handleHealth)
	if opts.MetricsEnabled {
		mux.HandleFunc("GET /metrics", s.handleMetrics)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		writePlain(w, http.StatusNotFound, "Invalid path")
	})

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:           panicRecovery(requestLogging(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// handlerFunc is a route handler that signals failure through its return
// value; the adapter maps errors to responses.
type handlerFunc func(w http.ResponseWriter, req *http.Request) error

func (s *Server) handle(method string, cors corsPolicy, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		cors.apply(w)

		metrics.RequestsActive.WithLabelValues(method).Inc()
		timer := time.Now()
		err := fn(w, req)
		metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(timer).Seconds())
		metrics.RequestsActive.WithLabelValues(method).Dec()

		if err != nil {
			writeError(w, req, method, err)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleMetrics serves the prometheus scrape endpoint. Requests arriving via
// a reverse proxy are refused; the endpoint is for direct scrapes only.
func (s *Server) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Header.Get("X-Forwarded-For") != "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	metrics.Handler().ServeHTTP(w, req)
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the server until it is shut down.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("starting http server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestUser describes the requesting client for the log sink.
func requestUser(req *http.Request, ip string) logsink.User {
	return logsink.User{
		UserAgent: headerOr(req, "User-Agent", "null"),
		Origin:    headerOr(req, "Origin", "null"),
		Host:      req.Host,
		IP:        ip,
	}
}

func headerOr(req *http.Request, name, fallback string) string {
	if v := req.Header.Get(name); v != "" {
		return v
	}
	return fallback
}
