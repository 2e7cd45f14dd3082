package logsink

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewPicksImplementation(t *testing.T) {
	assert.IsType(t, Stub{}, New("", time.Second))
	sink := New("http://localhost:1/events", time.Hour)
	assert.IsType(t, &HTTPSink{}, sink)
	sink.Close()
}

func TestHTTPSinkFlush(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, time.Hour)
	defer sink.Close()

	user := User{UserAgent: "curl/8.0", Origin: "https://example.com", Host: "paste.example.com", IP: "1.2.3.4"}
	expiry := time.Now().Add(time.Hour)

	sink.LogPost("abc1234", user, ContentInfo{Length: 100, Type: "text/plain", Expiry: expiry})
	sink.LogAttemptedGet("zzz9999", user)
	sink.LogGet("abc1234", user, ContentInfo{Length: 100, Type: "text/plain", Expiry: time.Time{}})
	sink.Flush()

	var body string
	select {
	case body = <-bodies:
	case <-time.After(2 * time.Second):
		t.Fatal("no export received")
	}

	events := gjson.Parse(body).Array()
	require.Len(t, events, 3)

	post := events[0]
	assert.Equal(t, "post", post.Get("kind").String())
	assert.Equal(t, "abc1234", post.Get("key").String())
	assert.Equal(t, "curl/8.0", post.Get("userAgent").String())
	assert.Equal(t, "1.2.3.4", post.Get("ip").String())
	assert.Equal(t, int64(100), post.Get("contentLength").Int())
	assert.Equal(t, expiry.UnixMilli(), post.Get("contentExpiry").Int())
	assert.Positive(t, post.Get("timestamp").Int())

	attempted := events[1]
	assert.Equal(t, "attempted-get", attempted.Get("kind").String())
	assert.False(t, attempted.Get("contentLength").Exists())

	get := events[2]
	assert.Equal(t, "get", get.Get("kind").String())
	assert.True(t, get.Get("contentExpiry").Exists())
	assert.Equal(t, gjson.Null, get.Get("contentExpiry").Type, "content that never expires exports a null expiry")
}

func TestHTTPSinkEmptyFlushSendsNothing(t *testing.T) {
	requests := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- struct{}{}
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, time.Hour)
	defer sink.Close()
	sink.Flush()

	select {
	case <-requests:
		t.Fatal("empty flush should not POST")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHTTPSinkPeriodicFlush(t *testing.T) {
	bodies := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, 30*time.Millisecond)
	defer sink.Close()

	sink.LogAttemptedGet("tick111", User{IP: "1.1.1.1"})

	select {
	case body := <-bodies:
		assert.Len(t, gjson.Parse(body).Array(), 1)
	case <-time.After(2 * time.Second):
		t.Fatal("periodic flush never fired")
	}
}

func TestCloseFlushes(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, time.Hour)
	sink.LogAttemptedGet("close11", User{IP: "1.1.1.1"})
	sink.Close()

	select {
	case body := <-bodies:
		assert.Len(t, gjson.Parse(body).Array(), 1)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not flush")
	}
}
