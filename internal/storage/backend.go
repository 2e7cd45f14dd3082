// Package storage provides the content storage backends, the backend
// selector, the shared I/O executor and the storage coordinator that ties
// them to the content index.
package storage

import (
	"context"

	"github.com/bytebin-io/bytebin/internal/content"
)

// Backend persists content records under their key.
type Backend interface {
	// BackendID identifies the backend in the index and in metrics.
	BackendID() string

	// Load reads the full record for key. Returns nil when absent.
	Load(ctx context.Context, key string) (*content.Content, error)

	// Save writes the record, replacing any previous version.
	Save(ctx context.Context, c *content.Content) error

	// Delete removes the record. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List streams metadata-only records to fn. A fn error stops the scan.
	List(ctx context.Context, fn func(*content.Content) error) error

	// ListKeys streams the stored keys to fn.
	ListKeys(ctx context.Context, fn func(string) error) error
}
