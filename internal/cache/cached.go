package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/bytebin-io/bytebin/internal/content"
)

// CachedLoader is a byte-weighted LRU of content futures with
// expire-after-access semantics. Storing futures rather than values gives
// single-flight loading: concurrent readers of a missing key share one
// storage load.
//
// An entry's weight is the content length once its future completes;
// incomplete entries weigh nothing and are never evicted.
type CachedLoader struct {
	load   LoadFunc
	runner Runner

	expiry    time.Duration
	maxWeight int64

	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	curWeight int64

	now func() time.Time
}

type cacheEntry struct {
	key        string
	future     *content.Future
	weight     int64
	lastAccess time.Time
}

var _ Loader = (*CachedLoader)(nil)

func NewCachedLoader(load LoadFunc, runner Runner, expiry time.Duration, maxSizeBytes int64) *CachedLoader {
	return &CachedLoader{
		load:      load,
		runner:    runner,
		expiry:    expiry,
		maxWeight: maxSizeBytes,
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		now:       time.Now,
	}
}

func (l *CachedLoader) Put(key string, future *content.Future) {
	l.mu.Lock()
	l.insert(key, future)
	l.mu.Unlock()
}

func (l *CachedLoader) Get(key string) *content.Future {
	l.mu.Lock()

	if elem, ok := l.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		if l.now().Sub(entry.lastAccess) <= l.expiry {
			entry.lastAccess = l.now()
			l.order.MoveToFront(elem)
			l.mu.Unlock()
			return entry.future
		}
		l.evict(elem)
	}

	future := content.NewFuture()
	l.insert(key, future)
	l.mu.Unlock()

	l.runner.Submit(func() {
		future.Complete(l.load(context.Background(), key))
	})
	return future
}

func (l *CachedLoader) Invalidate(keys []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		if elem, ok := l.entries[key]; ok {
			l.evict(elem)
		}
	}
}

// Prune drops entries that have not been accessed within the expiry window.
// Scheduled periodically alongside the storage invalidation.
func (l *CachedLoader) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for elem := l.order.Back(); elem != nil; {
		prev := elem.Prev()
		if entry := elem.Value.(*cacheEntry); now.Sub(entry.lastAccess) > l.expiry {
			l.evict(elem)
		}
		elem = prev
	}
}

// Weight returns the current cached byte total.
func (l *CachedLoader) Weight() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.curWeight
}

// insert must be called with the mutex held.
func (l *CachedLoader) insert(key string, future *content.Future) {
	if elem, ok := l.entries[key]; ok {
		l.evict(elem)
	}

	entry := &cacheEntry{key: key, future: future, lastAccess: l.now()}
	l.entries[key] = l.order.PushFront(entry)

	go l.weighWhenComplete(entry)
}

// evict must be called with the mutex held.
func (l *CachedLoader) evict(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	if l.entries[entry.key] == elem {
		delete(l.entries, entry.key)
	}
	l.order.Remove(elem)
	l.curWeight -= entry.weight
	entry.weight = 0
}

func (l *CachedLoader) weighWhenComplete(entry *cacheEntry) {
	c, err := entry.future.Wait(context.Background())

	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.entries[entry.key]
	if !ok || elem.Value.(*cacheEntry) != entry {
		// evicted or replaced while loading
		return
	}

	if err != nil || c.IsEmpty() {
		// failed and empty loads are not worth caching
		l.evict(elem)
		return
	}

	entry.weight = int64(len(c.Data))
	l.curWeight += entry.weight
	l.shed()
}

// shed evicts least recently used completed entries until the cache fits
// the weight budget. Must be called with the mutex held.
func (l *CachedLoader) shed() {
	for elem := l.order.Back(); elem != nil && l.curWeight > l.maxWeight; {
		prev := elem.Prev()
		if entry := elem.Value.(*cacheEntry); entry.weight > 0 {
			l.evict(elem)
		}
		elem = prev
	}
}
