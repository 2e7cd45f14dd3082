package storage

import (
	"time"

	"github.com/bytebin-io/bytebin/internal/content"
)

// Selector chooses the backend newly posted content is stored in.
type Selector interface {
	Select(c *content.Content) Backend
}

// StaticSelector always selects the same backend.
type StaticSelector struct {
	backend Backend
}

func NewStaticSelector(backend Backend) *StaticSelector {
	return &StaticSelector{backend: backend}
}

func (s *StaticSelector) Select(*content.Content) Backend {
	return s.backend
}

// IfSizeGtSelector selects the backend for content larger than a byte
// threshold, otherwise delegates to next.
type IfSizeGtSelector struct {
	threshold int
	backend   Backend
	next      Selector
}

func NewIfSizeGtSelector(thresholdBytes int, backend Backend, next Selector) *IfSizeGtSelector {
	return &IfSizeGtSelector{threshold: thresholdBytes, backend: backend, next: next}
}

func (s *IfSizeGtSelector) Select(c *content.Content) Backend {
	if len(c.Data) > s.threshold {
		return s.backend
	}
	return s.next.Select(c)
}

// IfExpiryGtSelector selects the backend for content that lives longer than
// a duration threshold. Content that never expires always matches.
type IfExpiryGtSelector struct {
	threshold time.Duration
	backend   Backend
	next      Selector
}

func NewIfExpiryGtSelector(threshold time.Duration, backend Backend, next Selector) *IfExpiryGtSelector {
	return &IfExpiryGtSelector{threshold: threshold, backend: backend, next: next}
}

func (s *IfExpiryGtSelector) Select(c *content.Content) Backend {
	if !c.Expires() || time.Until(c.Expiry) > s.threshold {
		return s.backend
	}
	return s.next.Select(c)
}
