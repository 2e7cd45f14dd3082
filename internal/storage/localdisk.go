package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/bytebin-io/bytebin/internal/content"
)

// LocalDiskBackend persists content to a directory on the local filesystem,
// one file per key.
type LocalDiskBackend struct {
	backendID   string
	contentPath string
}

var _ Backend = (*LocalDiskBackend)(nil)

// NewLocalDiskBackend creates the backend, making the content directory if
// needed.
func NewLocalDiskBackend(backendID, contentPath string) (*LocalDiskBackend, error) {
	if err := os.MkdirAll(contentPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating content directory: %w", err)
	}
	return &LocalDiskBackend{backendID: backendID, contentPath: contentPath}, nil
}

func (b *LocalDiskBackend) BackendID() string {
	return b.backendID
}

func (b *LocalDiskBackend) resolve(key string) string {
	return filepath.Join(b.contentPath, key)
}

func (b *LocalDiskBackend) load(path string, skipContent bool) (*content.Content, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	c, err := content.Read(f, skipContent)
	if err != nil {
		return nil, err
	}
	c.BackendID = b.backendID
	return c, nil
}

func (b *LocalDiskBackend) Load(_ context.Context, key string) (*content.Content, error) {
	return b.load(b.resolve(key), false)
}

func (b *LocalDiskBackend) Save(_ context.Context, c *content.Content) error {
	f, err := os.Create(b.resolve(c.Key))
	if err != nil {
		return err
	}
	if err := content.Write(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (b *LocalDiskBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.resolve(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List streams metadata for every stored file. Files that cannot be parsed
// because they are truncated are deleted; other load errors are logged and
// skipped.
func (b *LocalDiskBackend) List(ctx context.Context, fn func(*content.Content) error) error {
	entries, err := os.ReadDir(b.contentPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}

		path := filepath.Join(b.contentPath, entry.Name())
		c, err := b.load(path, true)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Warn().Str("key", entry.Name()).Msg("deleting corrupted content file")
				_ = os.Remove(path)
			} else {
				log.Error().Err(err).Str("key", entry.Name()).Msg("error loading content meta")
			}
			continue
		}
		if c == nil {
			continue
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (b *LocalDiskBackend) ListKeys(ctx context.Context, fn func(string) error) error {
	entries, err := os.ReadDir(b.contentPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := fn(entry.Name()); err != nil {
			return err
		}
	}
	return nil
}
