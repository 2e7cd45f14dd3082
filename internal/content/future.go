package content

import (
	"context"
	"sync"
)

// Future is a single-assignment holder for the result of an asynchronous
// content load or save. Concurrent waiters all observe the same result.
type Future struct {
	done    chan struct{}
	once    sync.Once
	content *Content
	err     error
}

// NewFuture creates an incomplete future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// CompletedFuture creates a future that already holds a result.
func CompletedFuture(c *Content, err error) *Future {
	f := NewFuture()
	f.Complete(c, err)
	return f
}

// Complete sets the result. Calls after the first are ignored.
func (f *Future) Complete(c *Content, err error) {
	f.once.Do(func() {
		f.content = c
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the future completes or the context is cancelled.
func (f *Future) Wait(ctx context.Context) (*Content, error) {
	select {
	case <-f.done:
		return f.content, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports whether the future has completed.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
