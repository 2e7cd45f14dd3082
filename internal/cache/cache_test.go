package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebin-io/bytebin/internal/content"
)

// syncRunner runs tasks inline.
type syncRunner struct{}

func (syncRunner) Submit(task func()) { task() }

// asyncRunner runs tasks on fresh goroutines.
type asyncRunner struct{}

func (asyncRunner) Submit(task func()) { go task() }

func loaded(key string, size int) *content.Content {
	c := &content.Content{
		Key:          key,
		ContentType:  "text/plain",
		LastModified: time.Now(),
		Data:         make([]byte, size),
	}
	c.ContentLength = size
	return c
}

func wait(t *testing.T, f *content.Future) (*content.Content, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestNewPicksImplementation(t *testing.T) {
	load := func(context.Context, string) (*content.Content, error) { return nil, nil }

	assert.IsType(t, &CachedLoader{}, New(load, syncRunner{}, time.Minute, 1024))
	assert.IsType(t, &DirectLoader{}, New(load, syncRunner{}, 0, 1024))
	assert.IsType(t, &DirectLoader{}, New(load, syncRunner{}, time.Minute, 0))
}

func TestCachedLoaderGet(t *testing.T) {
	var loads atomic.Int32
	load := func(_ context.Context, key string) (*content.Content, error) {
		loads.Add(1)
		return loaded(key, 10), nil
	}
	l := NewCachedLoader(load, syncRunner{}, time.Minute, 1000)

	c, err := wait(t, l.Get("abc1234"))
	require.NoError(t, err)
	assert.Equal(t, "abc1234", c.Key)
	assert.Equal(t, int32(1), loads.Load())

	// second get served from cache
	_, err = wait(t, l.Get("abc1234"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), loads.Load())
	assert.Eventually(t, func() bool { return l.Weight() == 10 }, time.Second, 5*time.Millisecond)
}

func TestCachedLoaderSingleFlight(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	load := func(_ context.Context, key string) (*content.Content, error) {
		loads.Add(1)
		<-release
		return loaded(key, 10), nil
	}
	l := NewCachedLoader(load, asyncRunner{}, time.Minute, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := wait(t, l.Get("shared1"))
			assert.NoError(t, err)
			assert.Equal(t, "shared1", c.Key)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load(), "concurrent readers should share one load")
}

func TestCachedLoaderPut(t *testing.T) {
	load := func(_ context.Context, key string) (*content.Content, error) {
		return nil, errors.New("should not hit storage")
	}
	l := NewCachedLoader(load, syncRunner{}, time.Minute, 1000)

	f := content.NewFuture()
	l.Put("new1234", f)
	f.Complete(loaded("new1234", 25), nil)

	c, err := wait(t, l.Get("new1234"))
	require.NoError(t, err)
	assert.Equal(t, "new1234", c.Key)

	// wait for the weigher to run
	assert.Eventually(t, func() bool { return l.Weight() == 25 }, time.Second, 5*time.Millisecond)
}

func TestCachedLoaderEvictsByWeight(t *testing.T) {
	load := func(_ context.Context, key string) (*content.Content, error) {
		return loaded(key, 40), nil
	}
	l := NewCachedLoader(load, syncRunner{}, time.Minute, 100)

	for i := 0; i < 5; i++ {
		_, err := wait(t, l.Get(fmt.Sprintf("key%d", i)))
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		w := l.Weight()
		return w > 0 && w <= 100
	}, time.Second, 5*time.Millisecond)
}

func TestCachedLoaderFailedLoadNotCached(t *testing.T) {
	var loads atomic.Int32
	load := func(_ context.Context, key string) (*content.Content, error) {
		loads.Add(1)
		return nil, errors.New("backend down")
	}
	l := NewCachedLoader(load, syncRunner{}, time.Minute, 1000)

	_, err := wait(t, l.Get("bad1234"))
	require.Error(t, err)

	_, err = wait(t, l.Get("bad1234"))
	require.Error(t, err)
	assert.Equal(t, int32(2), loads.Load(), "failed loads must not stick in the cache")
}

func TestCachedLoaderInvalidate(t *testing.T) {
	var loads atomic.Int32
	load := func(_ context.Context, key string) (*content.Content, error) {
		loads.Add(1)
		return loaded(key, 10), nil
	}
	l := NewCachedLoader(load, syncRunner{}, time.Minute, 1000)

	_, err := wait(t, l.Get("inv1234"))
	require.NoError(t, err)

	l.Invalidate([]string{"inv1234"})

	_, err = wait(t, l.Get("inv1234"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestCachedLoaderExpiresAfterAccess(t *testing.T) {
	var loads atomic.Int32
	load := func(_ context.Context, key string) (*content.Content, error) {
		loads.Add(1)
		return loaded(key, 10), nil
	}
	l := NewCachedLoader(load, syncRunner{}, time.Minute, 1000)

	now := time.Now()
	l.now = func() time.Time { return now }

	_, err := wait(t, l.Get("exp1234"))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = wait(t, l.Get("exp1234"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestCachedLoaderPrune(t *testing.T) {
	load := func(_ context.Context, key string) (*content.Content, error) {
		return loaded(key, 10), nil
	}
	l := NewCachedLoader(load, syncRunner{}, time.Minute, 1000)

	now := time.Now()
	l.now = func() time.Time { return now }

	_, err := wait(t, l.Get("pru1234"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return l.Weight() == 10 }, time.Second, 5*time.Millisecond)

	now = now.Add(2 * time.Minute)
	l.Prune()
	assert.Equal(t, int64(0), l.Weight())
}

func TestDirectLoader(t *testing.T) {
	t.Run("loads through", func(t *testing.T) {
		var loads atomic.Int32
		load := func(_ context.Context, key string) (*content.Content, error) {
			loads.Add(1)
			return loaded(key, 10), nil
		}
		l := NewDirectLoader(load, syncRunner{})

		_, err := wait(t, l.Get("dir1234"))
		require.NoError(t, err)
		_, err = wait(t, l.Get("dir1234"))
		require.NoError(t, err)
		assert.Equal(t, int32(2), loads.Load(), "direct mode never caches")
	})

	t.Run("serves in-flight saves", func(t *testing.T) {
		load := func(_ context.Context, key string) (*content.Content, error) {
			return nil, errors.New("not on disk yet")
		}
		l := NewDirectLoader(load, syncRunner{})

		c := loaded("sav1234", 10)
		f := content.CompletedFuture(c, nil)
		l.Put("sav1234", f)

		got, err := wait(t, l.Get("sav1234"))
		require.NoError(t, err)
		assert.Equal(t, "sav1234", got.Key)

		// once the save signal fires the entry is dropped
		c.MarkSaved()
		assert.Eventually(t, func() bool {
			_, err := wait(t, l.Get("sav1234"))
			return err != nil
		}, time.Second, 5*time.Millisecond)
	})
}
