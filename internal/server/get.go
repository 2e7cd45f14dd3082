package server

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/bytebin-io/bytebin/internal/compression"
	"github.com/bytebin-io/bytebin/internal/content"
	"github.com/bytebin-io/bytebin/internal/logsink"
	"github.com/bytebin-io/bytebin/internal/metrics"
	"github.com/bytebin-io/bytebin/internal/ratelimit"
)

// Cache-Control values for served content. Modifiable content must be
// revalidated; everything else is immutable for its lifetime.
const (
	cacheControlModifiable = "public, no-cache, proxy-revalidate, no-transform"
	cacheControlImmutable  = "public, max-age=604800, no-transform, immutable"
)

// handleGet serves stored content, negotiating the transport encoding
// against the requester's Accept-Encoding.
func (s *Server) handleGet(w http.ResponseWriter, req *http.Request) error {
	key := req.PathValue("id")
	if !content.IsValidKey(key) {
		metrics.RecordRejectedRequest("GET", "invalid_path", req)
		return NewStatusError(http.StatusNotFound, "Invalid path")
	}

	rl, err := s.rateLimits.Check(req, s.readLimiter)
	if err != nil {
		return err
	}

	accepted := content.AcceptedEncodings(req.Header.Get("Accept-Encoding"))

	log.Info().
		Str("key", key).
		Str("user_agent", headerOr(req, "User-Agent", "null")).
		Str("origin", headerOr(req, "Origin", "null")).
		Str("ip", rl.IP).
		Msg("content requested")

	// Clients that repeatedly probe keys that do not exist get locked out
	// for increasing periods.
	if rl.RealUser {
		s.logSink.LogAttemptedGet(key, requestUser(req, rl.IP))
		if s.notFound.Check(rl.IP) {
			metrics.RecordRejectedRequest("GET", "rate_limited_get_not_found", req)
			return ratelimit.ErrRateLimited
		}
	}

	c, err := s.loader.Get(key).Wait(req.Context())
	if err != nil {
		return fmt.Errorf("loading content for %s: %w", key, err)
	}
	if c.IsEmpty() {
		if rl.RealUser {
			s.notFound.Increment(rl.IP)
		}
		metrics.RecordRejectedRequest("GET", "not_found", req)
		return NewStatusError(http.StatusNotFound, "Invalid path")
	}

	if rl.CountMetrics() {
		metrics.RecordRequest("GET", req)
		s.logSink.LogGet(key, requestUser(req, rl.IP), logsink.ContentInfo{
			Length: len(c.Data),
			Type:   c.ContentType,
			Expiry: c.Expiry,
		})
	}

	if !c.LastModified.IsZero() {
		w.Header().Set("Last-Modified", c.LastModified.UTC().Format(http.TimeFormat))
	}
	if c.Modifiable {
		w.Header().Set("Cache-Control", cacheControlModifiable)
	} else {
		w.Header().Set("Cache-Control", cacheControlImmutable)
	}

	encodings := c.EncodingList()

	// Serve the stored bytes as-is when the requester accepts the whole
	// encoding chain.
	if content.AcceptsAll(accepted, encodings) {
		if len(encodings) > 0 {
			w.Header().Set("Content-Encoding", content.JoinEncodings(encodings))
		}
		w.Header().Set("Content-Type", c.ContentType)
		_, _ = w.Write(c.Data)
		return nil
	}

	// Plain gzip can be unwrapped on the content's behalf.
	if len(encodings) == 1 && encodings[0] == content.EncodingGzip {
		data, err := compression.Decompress(c.Data)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("unable to uncompress data")
			return NewStatusError(http.StatusNotFound, "Unable to uncompress data")
		}
		w.Header().Set("Content-Type", c.ContentType)
		_, _ = w.Write(data)
		return nil
	}

	return NewStatusError(http.StatusNotAcceptable, fmt.Sprintf(
		"Accept-Encoding %q does not contain Content-Encoding %q",
		req.Header.Get("Accept-Encoding"), c.Encoding,
	))
}
