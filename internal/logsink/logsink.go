// Package logsink exports content activity events (post, get, attempted-get)
// to an external HTTP collector in periodic batches.
package logsink

import (
	"time"
)

// User describes the client behind an event.
type User struct {
	UserAgent string
	Origin    string
	Host      string
	IP        string
}

// ContentInfo describes the content an event refers to.
type ContentInfo struct {
	Length int
	Type   string
	Expiry time.Time
}

// Handler receives content activity events.
type Handler interface {
	// LogPost records a successful content submission.
	LogPost(key string, user User, info ContentInfo)

	// LogGet records a successful content read.
	LogGet(key string, user User, info ContentInfo)

	// LogAttemptedGet records a read attempt, before it is known whether
	// the key resolves.
	LogAttemptedGet(key string, user User)

	// Close flushes pending events and stops the exporter.
	Close()
}

// New returns an HTTP exporting handler when a URI is configured, and a
// no-op stub otherwise.
func New(uri string, flushPeriod time.Duration) Handler {
	if uri == "" {
		return Stub{}
	}
	return NewHTTPSink(uri, flushPeriod)
}

// Stub discards all events.
type Stub struct{}

var _ Handler = Stub{}

func (Stub) LogPost(string, User, ContentInfo) {}
func (Stub) LogGet(string, User, ContentInfo)  {}
func (Stub) LogAttemptedGet(string, User)      {}
func (Stub) Close()                            {}
