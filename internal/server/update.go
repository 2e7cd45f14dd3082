package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bytebin-io/bytebin/internal/compression"
	"github.com/bytebin-io/bytebin/internal/content"
	"github.com/bytebin-io/bytebin/internal/logsink"
	"github.com/bytebin-io/bytebin/internal/metrics"
)

// handleUpdate replaces the content under an existing key. Only content
// posted with Allow-Modification can be updated, and the requester must
// present its modification key as a bearer token.
func (s *Server) handleUpdate(w http.ResponseWriter, req *http.Request) error {
	key := req.PathValue("id")
	if !content.IsValidKey(key) {
		metrics.RecordRejectedRequest("PUT", "invalid_path", req)
		return NewStatusError(http.StatusNotFound, "Invalid path")
	}

	body, err := s.readBody(req, "PUT")
	if err != nil {
		return err
	}
	if len(body) == 0 {
		metrics.RecordRejectedRequest("PUT", "missing_content", req)
		return NewStatusError(http.StatusBadRequest, "Missing content")
	}

	rl, err := s.rateLimits.Check(req, s.updateLimiter)
	if err != nil {
		return err
	}

	authKey, err := bearerToken(req)
	if err != nil {
		return err
	}

	prev, err := s.loader.Get(key).Wait(req.Context())
	if err != nil {
		return fmt.Errorf("loading content for %s: %w", key, err)
	}
	if prev.IsEmpty() || !prev.Modifiable || prev.AuthKey != authKey {
		return NewStatusError(http.StatusForbidden, "Incorrect modification key")
	}

	contentType := headerOr(req, "Content-Type", prev.ContentType)
	encodings := content.ParseContentEncoding(req.Header.Get("Content-Encoding"))

	data := body
	if len(encodings) == 0 {
		data, err = compression.Compress(body)
		if err != nil {
			return fmt.Errorf("compressing content: %w", err)
		}
		encodings = []string{content.EncodingGzip}
	}
	if len(data) > s.maxContentLength {
		metrics.RecordRejectedRequest("PUT", "content_too_large", req)
		return NewStatusError(http.StatusRequestEntityTooLarge, "Content too large")
	}

	userAgent := headerOr(req, "User-Agent", "null")
	origin := headerOr(req, "Origin", "null")
	expiry := s.expiryPolicy.Expiry(userAgent, origin, req.Host)

	if rl.CountMetrics() {
		metrics.RecordRequest("PUT", req)
		metrics.ContentSize.WithLabelValues(metrics.Label(req)).Observe(float64(len(body)))
		log.Info().
			Str("key", key).
			Str("type", contentType).
			Str("user_agent", userAgent).
			Str("origin", origin).
			Str("ip", rl.IP).
			Int("length", len(data)).
			Msg("content updated")
		s.logSink.LogPost(key, requestUser(req, rl.IP), logsink.ContentInfo{
			Length: len(data),
			Type:   contentType,
			Expiry: expiry,
		})
	}

	// The cached record may have concurrent readers, so the update builds a
	// fresh record rather than mutating in place.
	c := &content.Content{
		Key:           key,
		ContentType:   contentType,
		Expiry:        expiry,
		LastModified:  time.Now(),
		Modifiable:    true,
		AuthKey:       prev.AuthKey,
		Encoding:      content.JoinEncodings(encodings),
		BackendID:     prev.BackendID,
		ContentLength: len(data),
		Data:          data,
	}

	s.loader.Put(key, content.CompletedFuture(c, nil))
	s.storage.Executor().Submit(func() {
		defer c.MarkSaved()
		if err := s.storage.Save(context.Background(), c); err != nil {
			log.Error().Err(err).Str("key", key).Msg("error saving updated content")
		}
	})

	w.WriteHeader(http.StatusOK)
	return nil
}

// bearerToken extracts the modification key from the Authorization header.
func bearerToken(req *http.Request) (string, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return "", NewStatusError(http.StatusUnauthorized, "Authorization header not present")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", NewStatusError(http.StatusUnauthorized, "Invalid Authorization scheme")
	}
	return token, nil
}
