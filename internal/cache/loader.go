// Package cache provides the content loaders used by the HTTP handlers:
// a byte-weighted in-memory cache, or a pass-through that only tracks
// in-flight saves.
package cache

import (
	"context"
	"time"

	"github.com/bytebin-io/bytebin/internal/content"
)

// LoadFunc loads content from storage.
type LoadFunc func(ctx context.Context, key string) (*content.Content, error)

// Runner executes load tasks off the request goroutine.
type Runner interface {
	Submit(task func())
}

// Loader serves content reads, and is told about writes so that freshly
// posted content is immediately readable even while the durable save is
// still running.
type Loader interface {
	// Put registers a future for newly submitted content.
	Put(key string, future *content.Future)

	// Get returns a future for the content under key.
	Get(key string) *content.Future

	// Invalidate drops any cached state for the given keys.
	Invalidate(keys []string)
}

// New picks the loader implementation: a weighted cache when both knobs are
// positive, a direct pass-through otherwise.
func New(load LoadFunc, runner Runner, expiry time.Duration, maxSizeBytes int64) Loader {
	if expiry > 0 && maxSizeBytes > 0 {
		return NewCachedLoader(load, runner, expiry, maxSizeBytes)
	}
	return NewDirectLoader(load, runner)
}

// DirectLoader loads straight from storage. A small map keeps futures for
// content whose save is still in flight, so an immediate read-after-write
// does not race the disk.
type DirectLoader struct {
	load   LoadFunc
	runner Runner

	inProgress inProgressMap
}

var _ Loader = (*DirectLoader)(nil)

func NewDirectLoader(load LoadFunc, runner Runner) *DirectLoader {
	return &DirectLoader{load: load, runner: runner}
}

func (l *DirectLoader) Put(key string, future *content.Future) {
	l.inProgress.track(key, future)
}

func (l *DirectLoader) Get(key string) *content.Future {
	if f := l.inProgress.get(key); f != nil {
		return f
	}

	f := content.NewFuture()
	l.runner.Submit(func() {
		f.Complete(l.load(context.Background(), key))
	})
	return f
}

func (l *DirectLoader) Invalidate(keys []string) {
	l.inProgress.remove(keys)
}
