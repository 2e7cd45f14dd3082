package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/bytebin-io/bytebin/internal/compression"
	"github.com/bytebin-io/bytebin/internal/content"
	"github.com/bytebin-io/bytebin/internal/logsink"
	"github.com/bytebin-io/bytebin/internal/metrics"
)

// Headers used by the submission endpoints.
const (
	headerAllowModification = "Allow-Modification"
	headerModificationKey   = "Modification-Key"
)

// authKeys generates the modification keys handed out for modifiable
// content.
var authKeys = func() *content.TokenGenerator {
	g, err := content.NewTokenGenerator(32)
	if err != nil {
		panic(err)
	}
	return g
}()

// readBody reads the request body. Server-side compression is gated on the
// compressed size, so the raw buffer is allowed headroom over the content
// limit; anything beyond four times the limit is rejected outright rather
// than truncated.
func (s *Server) readBody(req *http.Request, method string) ([]byte, error) {
	bound := int64(s.maxContentLength) * 4
	body, err := io.ReadAll(io.LimitReader(req.Body, bound+1))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if int64(len(body)) > bound {
		metrics.RecordRejectedRequest(method, "content_too_large", req)
		return nil, NewStatusError(http.StatusRequestEntityTooLarge, "Content too large")
	}
	return body, nil
}

// handlePost accepts new content on POST or PUT /post and responds with the
// generated key.
func (s *Server) handlePost(w http.ResponseWriter, req *http.Request) error {
	method := req.Method

	body, err := s.readBody(req, method)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		metrics.RecordRejectedRequest(method, "missing_content", req)
		return NewStatusError(http.StatusBadRequest, "Missing content")
	}

	rl, err := s.rateLimits.Check(req, s.postLimiter)
	if err != nil {
		return err
	}

	contentType := headerOr(req, "Content-Type", "text/plain")
	key := s.tokens.Generate()
	encodings := content.ParseContentEncoding(req.Header.Get("Content-Encoding"))

	userAgent := headerOr(req, "User-Agent", "null")
	origin := headerOr(req, "Origin", "null")
	expiry := s.expiryPolicy.Expiry(userAgent, origin, req.Host)

	modifiable := strings.EqualFold(req.Header.Get(headerAllowModification), "true")
	authKey := ""
	if modifiable {
		authKey = authKeys.Generate()
	}

	// No client encoding means the server compresses on the content's
	// behalf. The size limit then applies to what is actually stored.
	data := body
	if len(encodings) == 0 {
		data, err = compression.Compress(body)
		if err != nil {
			return fmt.Errorf("compressing content: %w", err)
		}
		encodings = []string{content.EncodingGzip}
	}
	if len(data) > s.maxContentLength {
		metrics.RecordRejectedRequest(method, "content_too_large", req)
		return NewStatusError(http.StatusRequestEntityTooLarge, "Content too large")
	}

	if rl.CountMetrics() {
		metrics.RecordRequest(method, req)
		metrics.ContentSize.WithLabelValues(metrics.Label(req)).Observe(float64(len(body)))
		log.Info().
			Str("key", key).
			Str("type", contentType).
			Str("user_agent", userAgent).
			Str("origin", origin).
			Str("ip", rl.IP).
			Int("length", len(data)).
			Time("expiry", expiry).
			Msg("content posted")
		s.logSink.LogPost(key, requestUser(req, rl.IP), logsink.ContentInfo{
			Length: len(data),
			Type:   contentType,
			Expiry: expiry,
		})
	}

	c := &content.Content{
		Key:           key,
		ContentType:   contentType,
		Expiry:        expiry,
		LastModified:  time.Now(),
		Modifiable:    modifiable,
		AuthKey:       authKey,
		Encoding:      content.JoinEncodings(encodings),
		ContentLength: len(data),
		Data:          data,
	}

	// Make the content readable immediately, then persist off the request
	// goroutine. The save outlives the request, so it does not inherit the
	// request context.
	s.loader.Put(key, content.CompletedFuture(c, nil))
	s.storage.Executor().Submit(func() {
		defer c.MarkSaved()
		if err := s.storage.Save(context.Background(), c); err != nil {
			log.Error().Err(err).Str("key", key).Msg("error saving content")
		}
	})

	if modifiable {
		w.Header().Set(headerModificationKey, authKey)
	}

	if method == http.MethodPut {
		host := req.Host
		if alias, ok := s.hostAliases[host]; ok {
			host = alias
		}
		location := "https://" + host + "/" + key
		w.Header().Set("Location", location)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(location + "\n"))
		return nil
	}

	w.Header().Set("Location", key)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	resp, _ := sjson.SetBytes([]byte(`{}`), "key", key)
	_, _ = w.Write(resp)
	return nil
}
