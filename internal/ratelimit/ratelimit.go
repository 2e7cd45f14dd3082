// Package ratelimit implements the per-IP request limiters and the trusted
// proxy handling used by the HTTP handlers.
package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RateLimiter tracks actions per IP address.
type RateLimiter interface {
	// Check reports whether the IP is currently over the limit.
	Check(ip string) bool

	// CheckAndIncrement records an action and reports whether the IP was
	// already over the limit before it.
	CheckAndIncrement(ip string) bool

	// Increment records an action without checking.
	Increment(ip string)
}

// FixedWindow allows a fixed number of actions per period. Counters reset
// when their window entry expires.
type FixedWindow struct {
	mu       sync.Mutex
	counters *expirable.LRU[string, *counter]
	limit    int
}

type counter struct {
	mu    sync.Mutex
	count int
}

var _ RateLimiter = (*FixedWindow)(nil)

// NewFixedWindow creates a limiter allowing limit actions per period.
func NewFixedWindow(period time.Duration, limit int) *FixedWindow {
	return &FixedWindow{
		counters: expirable.NewLRU[string, *counter](0, nil, period),
		limit:    limit,
	}
}

func (l *FixedWindow) get(ip string) *counter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.counters.Get(ip); ok {
		return c
	}
	c := &counter{}
	l.counters.Add(ip, c)
	return c
}

func (l *FixedWindow) Check(ip string) bool {
	c := l.get(ip)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count > l.limit
}

func (l *FixedWindow) CheckAndIncrement(ip string) bool {
	c := l.get(ip)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.count > l.limit
}

func (l *FixedWindow) Increment(ip string) {
	c := l.get(ip)
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}
