package logsink

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"
)

// HTTPSink queues events in memory and POSTs them as a JSON array to the
// configured URI on a fixed interval. Export failures are logged and the
// batch is dropped; events are activity telemetry, not durable state.
type HTTPSink struct {
	uri    string
	client *http.Client

	mu    sync.Mutex
	queue [][]byte

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	now func() time.Time
}

var _ Handler = (*HTTPSink)(nil)

func NewHTTPSink(uri string, flushPeriod time.Duration) *HTTPSink {
	s := &HTTPSink{
		uri:    uri,
		client: &http.Client{Timeout: 10 * time.Second},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go s.run(flushPeriod)
	return s
}

func (s *HTTPSink) run(flushPeriod time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-s.stop:
			s.Flush()
			return
		}
	}
}

func (s *HTTPSink) event(kind, key string, user User) []byte {
	buf, _ := sjson.SetBytes([]byte(`{}`), "kind", kind)
	buf, _ = sjson.SetBytes(buf, "timestamp", s.now().UnixMilli())
	buf, _ = sjson.SetBytes(buf, "key", key)
	buf, _ = sjson.SetBytes(buf, "userAgent", user.UserAgent)
	buf, _ = sjson.SetBytes(buf, "origin", user.Origin)
	buf, _ = sjson.SetBytes(buf, "host", user.Host)
	buf, _ = sjson.SetBytes(buf, "ip", user.IP)
	return buf
}

func withContent(buf []byte, info ContentInfo) []byte {
	buf, _ = sjson.SetBytes(buf, "contentLength", info.Length)
	buf, _ = sjson.SetBytes(buf, "contentType", info.Type)
	if info.Expiry.IsZero() {
		buf, _ = sjson.SetBytes(buf, "contentExpiry", nil)
	} else {
		buf, _ = sjson.SetBytes(buf, "contentExpiry", info.Expiry.UnixMilli())
	}
	return buf
}

func (s *HTTPSink) enqueue(event []byte) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()
}

func (s *HTTPSink) LogPost(key string, user User, info ContentInfo) {
	s.enqueue(withContent(s.event("post", key, user), info))
}

func (s *HTTPSink) LogGet(key string, user User, info ContentInfo) {
	s.enqueue(withContent(s.event("get", key, user), info))
}

func (s *HTTPSink) LogAttemptedGet(key string, user User) {
	s.enqueue(s.event("attempted-get", key, user))
}

// Flush exports all queued events as one JSON array.
func (s *HTTPSink) Flush() {
	s.mu.Lock()
	events := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(events) == 0 {
		return
	}

	body := []byte(`[]`)
	for _, event := range events {
		body, _ = sjson.SetRawBytes(body, "-1", event)
	}

	resp, err := s.client.Post(s.uri, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Int("events", len(events)).Msg("error exporting log events")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Int("events", len(events)).Msg("log event export rejected")
	}
}

func (s *HTTPSink) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}
