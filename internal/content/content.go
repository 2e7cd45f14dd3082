// Package content defines the content record shared by the whole service,
// together with its binary codec, the upload token generator and the
// HTTP content-encoding negotiation helpers.
//
// A Content value travels from the request handlers through the cache and
// the storage coordinator down to the backends. The bytes may be absent
// (metadata-only) when a record was loaded through a backend list scan.
package content

import (
	"strings"
	"sync"
	"time"
)

// MegabyteLength is the number of bytes in a megabyte.
const MegabyteLength = 1024 * 1024

// Content is a single stored blob and its metadata.
//
// A zero Expiry means the content never expires. Data may be empty when only
// metadata was loaded; ContentLength always reflects the stored byte count.
type Content struct {
	Key           string
	ContentType   string
	Expiry        time.Time
	LastModified  time.Time
	Modifiable    bool
	AuthKey       string
	Encoding      string
	BackendID     string
	ContentLength int
	Data          []byte

	saveInit sync.Once
	saveMark sync.Once
	saveDone chan struct{}
}

// Empty is the sentinel returned when a key does not resolve to any stored
// content.
func Empty() *Content {
	return &Content{ContentType: "text/plain"}
}

// IsEmpty reports whether c is absent or the empty sentinel.
func (c *Content) IsEmpty() bool {
	return c == nil || c.Key == "" || len(c.Data) == 0
}

// Expires reports whether the content has a finite expiry time.
func (c *Content) Expires() bool {
	return !c.Expiry.IsZero()
}

// ShouldExpire reports whether the content has expired as of now.
func (c *Content) ShouldExpire() bool {
	return c.Expires() && c.Expiry.Before(time.Now())
}

// EncodingList returns the parsed transport encoding chain.
func (c *Content) EncodingList() []string {
	return ParseContentEncoding(c.Encoding)
}

func (c *Content) saveChan() chan struct{} {
	c.saveInit.Do(func() {
		c.saveDone = make(chan struct{})
	})
	return c.saveDone
}

// SaveDone returns a channel that is closed once the first durable write of
// this record has finished, whether it succeeded or not.
func (c *Content) SaveDone() <-chan struct{} {
	return c.saveChan()
}

// MarkSaved fulfils the save-completion signal. Safe to call more than once.
func (c *Content) MarkSaved() {
	ch := c.saveChan()
	c.saveMark.Do(func() {
		close(ch)
	})
}

// Saved reports whether the save-completion signal has fired.
func (c *Content) Saved() bool {
	select {
	case <-c.SaveDone():
		return true
	default:
		return false
	}
}

// JoinEncodings joins an encoding chain back into the stored comma form.
func JoinEncodings(encodings []string) string {
	return strings.Join(encodings, ",")
}
