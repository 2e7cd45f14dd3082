package server

import "time"

// ExpiryPolicy decides how long submitted content lives. Specific lifetimes
// are keyed by user agent, origin or host; the first match wins in that
// order. A non-positive lifetime means the content never expires.
type ExpiryPolicy struct {
	defaultLifetime time.Duration
	specific        map[string]time.Duration
}

// NewExpiryPolicy creates a policy from lifetimes expressed in minutes.
func NewExpiryPolicy(lifetimeMins int, specificMins map[string]int) *ExpiryPolicy {
	specific := make(map[string]time.Duration, len(specificMins))
	for label, mins := range specificMins {
		specific[label] = minutes(mins)
	}
	return &ExpiryPolicy{
		defaultLifetime: minutes(lifetimeMins),
		specific:        specific,
	}
}

func minutes(mins int) time.Duration {
	if mins <= 0 {
		return 0
	}
	return time.Duration(mins) * time.Minute
}

// Expiry returns the expiry time for content posted with the given request
// attributes. The zero time means never.
func (p *ExpiryPolicy) Expiry(userAgent, origin, host string) time.Time {
	lifetime := p.defaultLifetime
	for _, label := range []string{userAgent, origin, host} {
		if d, ok := p.specific[label]; ok {
			lifetime = d
			break
		}
	}
	if lifetime <= 0 {
		return time.Time{}
	}
	return time.Now().Add(lifetime)
}
