package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bytebin-io/bytebin/internal/content"
	"github.com/bytebin-io/bytebin/internal/index"
	"github.com/bytebin-io/bytebin/internal/metrics"
)

// Coordinator routes content operations to the right backend using the
// index, and runs the periodic expiry invalidation.
type Coordinator struct {
	executor *Executor
	backends map[string]Backend
	selector Selector
	idx      *index.Database
}

// NewCoordinator wires the backends, the selector and the index together.
func NewCoordinator(executor *Executor, backends []Backend, selector Selector, idx *index.Database) *Coordinator {
	m := make(map[string]Backend, len(backends))
	for _, b := range backends {
		m[b.BackendID()] = b
	}
	return &Coordinator{executor: executor, backends: m, selector: selector, idx: idx}
}

// Executor exposes the shared I/O pool.
func (co *Coordinator) Executor() *Executor {
	return co.executor
}

// Load reads the content for key. The index decides which backend holds it;
// a key the index does not know yields the empty sentinel.
func (co *Coordinator) Load(ctx context.Context, key string) (*content.Content, error) {
	entry := co.idx.Get(ctx, key)
	if entry == nil {
		return content.Empty(), nil
	}

	backend, ok := co.backends[entry.BackendID]
	if !ok {
		return nil, fmt.Errorf("index references unknown backend %q for key %s", entry.BackendID, key)
	}

	log.Info().Str("key", key).Str("backend", entry.BackendID).Msg("loading content from backend")

	timer := time.Now()
	c, err := backend.Load(ctx, key)
	metrics.BackendReadDuration.WithLabelValues(entry.BackendID).Observe(time.Since(timer).Seconds())
	metrics.BackendReads.WithLabelValues(entry.BackendID).Inc()
	if err != nil {
		return nil, fmt.Errorf("loading %s from %s backend: %w", key, entry.BackendID, err)
	}
	if c == nil {
		return content.Empty(), nil
	}
	return c, nil
}

// Save selects a backend for the content, writes it there and updates the
// index. When a re-save lands on a different backend, the copy on the
// previous backend is removed once the new write and index row are in place.
func (co *Coordinator) Save(ctx context.Context, c *content.Content) error {
	prev := co.idx.Get(ctx, c.Key)

	backend := co.selector.Select(c)
	c.BackendID = backend.BackendID()
	c.ContentLength = len(c.Data)

	timer := time.Now()
	err := backend.Save(ctx, c)
	metrics.BackendWriteDuration.WithLabelValues(c.BackendID).Observe(time.Since(timer).Seconds())
	metrics.BackendWrites.WithLabelValues(c.BackendID).Inc()
	if err != nil {
		return fmt.Errorf("saving %s to %s backend: %w", c.Key, c.BackendID, err)
	}

	co.idx.Put(ctx, c)

	if prev != nil && prev.BackendID != c.BackendID {
		old, ok := co.backends[prev.BackendID]
		if !ok {
			return nil
		}
		if err := old.Delete(ctx, c.Key); err != nil {
			log.Error().Err(err).Str("key", c.Key).Str("backend", prev.BackendID).Msg("error deleting superseded content")
		} else {
			metrics.BackendDeletes.WithLabelValues(prev.BackendID).Inc()
		}
	}
	return nil
}

func (co *Coordinator) delete(ctx context.Context, backendID, key string) error {
	backend, ok := co.backends[backendID]
	if !ok {
		return fmt.Errorf("unknown backend %q for key %s", backendID, key)
	}
	if err := backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting %s from %s backend: %w", key, backendID, err)
	}
	metrics.BackendDeletes.WithLabelValues(backendID).Inc()
	co.idx.Remove(ctx, key)
	return nil
}

// BulkDelete removes the given keys. Keys unknown to the index are skipped
// unless force is set, in which case the delete is attempted against every
// backend. Returns the number of keys deleted.
func (co *Coordinator) BulkDelete(ctx context.Context, keys []string, force bool) int {
	deleted := 0
	for _, key := range keys {
		entry := co.idx.Get(ctx, key)
		if entry == nil {
			if !force {
				continue
			}
			for id, backend := range co.backends {
				if err := backend.Delete(ctx, key); err != nil {
					log.Error().Err(err).Str("key", key).Str("backend", id).Msg("error force-deleting content")
				} else {
					metrics.BackendDeletes.WithLabelValues(id).Inc()
				}
			}
			co.idx.Remove(ctx, key)
			deleted++
			continue
		}

		if err := co.delete(ctx, entry.BackendID, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("error deleting content")
			continue
		}
		deleted++
	}
	return deleted
}

// RunInvalidation deletes expired content and refreshes the content
// metrics. Scheduled periodically on the executor.
func (co *Coordinator) RunInvalidation(ctx context.Context) {
	expired := co.idx.GetExpired(ctx)
	for _, entry := range expired {
		log.Info().Str("key", entry.Key).Str("backend", entry.BackendID).Msg("deleting expired content")
		if err := co.delete(ctx, entry.BackendID, entry.Key); err != nil {
			log.Error().Err(err).Str("key", entry.Key).Msg("error deleting expired content")
		}
	}
	co.idx.RecordMetrics(ctx)
}
