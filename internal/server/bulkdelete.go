package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/bytebin-io/bytebin/internal/metrics"
	"github.com/bytebin-io/bytebin/internal/ratelimit"
)

// handleBulkDelete removes a batch of keys. The endpoint is restricted to
// admin API keys; the body is a JSON array of keys. With ?force=true keys
// unknown to the index are deleted from every backend.
func (s *Server) handleBulkDelete(w http.ResponseWriter, req *http.Request) error {
	apiKey := req.Header.Get(ratelimit.HeaderAPIKey)
	if _, ok := s.adminAPIKeys[apiKey]; apiKey == "" || !ok {
		return NewStatusError(http.StatusUnauthorized, "API key is invalid")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	var keys []string
	for _, result := range gjson.ParseBytes(body).Array() {
		if key := result.String(); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		metrics.RecordRejectedRequest("POST", "missing_content", req)
		return NewStatusError(http.StatusBadRequest, "Missing content")
	}

	force := req.URL.Query().Get("force") == "true"

	log.Info().Int("keys", len(keys)).Bool("force", force).Msg("bulk deleting content")

	deleted := s.storage.BulkDelete(req.Context(), keys, force)
	s.loader.Invalidate(keys)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.Itoa(deleted)))
	return nil
}
