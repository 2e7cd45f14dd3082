package storage

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bytebin-io/bytebin/internal/index"
)

// AuditTask reports keys that exist in a backend but not in the index.
// Report-only: nothing is deleted.
type AuditTask struct {
	idx      *index.Database
	backends []Backend
}

func NewAuditTask(idx *index.Database, backends []Backend) *AuditTask {
	return &AuditTask{idx: idx, backends: backends}
}

func (t *AuditTask) Run(ctx context.Context) {
	log.Info().Msg("starting storage audit")

	for _, backend := range t.backends {
		backendID := backend.BackendID()
		log.Info().Str("backend", backendID).Msg("listing content for backend")

		var total int
		var missing []string
		err := backend.ListKeys(ctx, func(key string) error {
			total++
			if t.idx.Get(ctx, key) == nil {
				missing = append(missing, key)
			}
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("backend", backendID).Msg("error auditing backend")
			continue
		}

		log.Info().
			Str("backend", backendID).
			Int("entries", total).
			Int("missing_from_index", len(missing)).
			Msg("audit results for backend")
		if len(missing) > 0 {
			log.Info().Str("backend", backendID).Str("keys", strings.Join(missing, ",")).Msg("keys missing from index")
		}
	}

	log.Info().Msg("finished storage audit")
}
