package cache

import (
	"context"
	"sync"

	"github.com/bytebin-io/bytebin/internal/content"
)

// inProgressMap holds futures for content whose first durable write has not
// finished yet. Entries remove themselves once the save signal fires.
type inProgressMap struct {
	mu      sync.Mutex
	futures map[string]*content.Future
}

func (m *inProgressMap) track(key string, future *content.Future) {
	m.mu.Lock()
	if m.futures == nil {
		m.futures = make(map[string]*content.Future)
	}
	m.futures[key] = future
	m.mu.Unlock()

	go func() {
		c, err := future.Wait(context.Background())
		if err == nil && c != nil {
			<-c.SaveDone()
		}
		m.mu.Lock()
		if m.futures[key] == future {
			delete(m.futures, key)
		}
		m.mu.Unlock()
	}()
}

func (m *inProgressMap) get(key string) *content.Future {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.futures[key]
}

func (m *inProgressMap) remove(keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.futures, key)
	}
}
