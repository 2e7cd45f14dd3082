package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindow(t *testing.T) {
	t.Run("allows up to the limit", func(t *testing.T) {
		l := NewFixedWindow(time.Minute, 3)
		for i := 0; i < 3; i++ {
			assert.False(t, l.CheckAndIncrement("1.2.3.4"), "action %d should pass", i)
		}
		assert.True(t, l.CheckAndIncrement("1.2.3.4"))
		assert.True(t, l.Check("1.2.3.4"))
	})

	t.Run("tracks IPs independently", func(t *testing.T) {
		l := NewFixedWindow(time.Minute, 1)
		assert.False(t, l.CheckAndIncrement("1.1.1.1"))
		assert.False(t, l.CheckAndIncrement("2.2.2.2"))
		l.Increment("1.1.1.1")
		assert.True(t, l.Check("1.1.1.1"))
		assert.False(t, l.Check("2.2.2.2"))
	})

	t.Run("check does not increment", func(t *testing.T) {
		l := NewFixedWindow(time.Minute, 2)
		for i := 0; i < 10; i++ {
			assert.False(t, l.Check("3.3.3.3"))
		}
	})

	t.Run("window expires", func(t *testing.T) {
		l := NewFixedWindow(50*time.Millisecond, 1)
		l.Increment("4.4.4.4")
		l.Increment("4.4.4.4")
		assert.True(t, l.Check("4.4.4.4"))

		time.Sleep(120 * time.Millisecond)
		assert.False(t, l.Check("4.4.4.4"))
	})
}

func TestExponential(t *testing.T) {
	newLimiter := func() (*Exponential, *time.Time) {
		now := time.Now()
		l := NewExponential(3, time.Minute, 2.0, 10*time.Minute)
		l.now = func() time.Time { return now }
		return l, &now
	}

	t.Run("locks out after threshold", func(t *testing.T) {
		l, _ := newLimiter()
		assert.False(t, l.CheckAndIncrement("1.1.1.1"))
		assert.False(t, l.CheckAndIncrement("1.1.1.1"))
		assert.False(t, l.CheckAndIncrement("1.1.1.1"))
		// third increment hit the threshold, now locked
		assert.True(t, l.Check("1.1.1.1"))
		assert.True(t, l.CheckAndIncrement("1.1.1.1"))
	})

	t.Run("lockout period grows", func(t *testing.T) {
		l, now := newLimiter()
		for i := 0; i < 3; i++ {
			l.Increment("2.2.2.2")
		}
		assert.True(t, l.Check("2.2.2.2"))

		// first lockout lasts one minute
		*now = now.Add(61 * time.Second)
		assert.False(t, l.Check("2.2.2.2"))

		for i := 0; i < 3; i++ {
			l.Increment("2.2.2.2")
		}
		// second lockout lasts two minutes
		*now = now.Add(90 * time.Second)
		assert.True(t, l.Check("2.2.2.2"))
		*now = now.Add(31 * time.Second)
		assert.False(t, l.Check("2.2.2.2"))
	})

	t.Run("resets after idle period", func(t *testing.T) {
		l, now := newLimiter()
		for i := 0; i < 3; i++ {
			l.Increment("3.3.3.3")
		}
		assert.True(t, l.Check("3.3.3.3"))

		*now = now.Add(11 * time.Minute)
		assert.False(t, l.Check("3.3.3.3"))
	})

	t.Run("prune drops idle entries", func(t *testing.T) {
		l, now := newLimiter()
		l.Increment("4.4.4.4")
		*now = now.Add(11 * time.Minute)
		l.Prune()
		l.mu.Lock()
		assert.Empty(t, l.entries)
		l.mu.Unlock()
	})
}

func TestHandlerCheck(t *testing.T) {
	limiter := NewFixedWindow(time.Minute, 100)
	h := NewHandler([]string{"valid-api-key"})

	t.Run("plain request uses remote address", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/abc", nil)
		req.RemoteAddr = "9.9.9.9:51234"

		res, err := h.Check(req, limiter)
		require.NoError(t, err)
		assert.Equal(t, "9.9.9.9", res.IP)
		assert.True(t, res.RealUser)
		assert.True(t, res.CountMetrics())
	})

	t.Run("x-real-ip wins over remote address", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/abc", nil)
		req.RemoteAddr = "9.9.9.9:51234"
		req.Header.Set("x-real-ip", "5.5.5.5")

		res, err := h.Check(req, limiter)
		require.NoError(t, err)
		assert.Equal(t, "5.5.5.5", res.IP)
	})

	t.Run("invalid api key rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/abc", nil)
		req.Header.Set(HeaderAPIKey, "wrong")

		_, err := h.Check(req, limiter)
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	})

	t.Run("valid api key with forwarded ip", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/abc", nil)
		req.Header.Set(HeaderAPIKey, "valid-api-key")
		req.Header.Set(HeaderForwardedIP, "7.7.7.7")

		res, err := h.Check(req, limiter)
		require.NoError(t, err)
		assert.Equal(t, "7.7.7.7", res.IP)
		assert.True(t, res.RealUser)
	})

	t.Run("valid api key without forwarded ip is not a real user", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/abc", nil)
		req.RemoteAddr = "9.9.9.9:51234"
		req.Header.Set(HeaderAPIKey, "valid-api-key")

		res, err := h.Check(req, limiter)
		require.NoError(t, err)
		assert.False(t, res.RealUser)
		assert.False(t, res.CountMetrics())
	})

	t.Run("rate limited", func(t *testing.T) {
		tight := NewFixedWindow(time.Minute, 0)
		req := httptest.NewRequest("GET", "/abc", nil)
		req.RemoteAddr = "8.8.8.8:1000"

		_, err := h.Check(req, tight)
		assert.ErrorIs(t, err, ErrRateLimited)
	})
}
