package ratelimit

import (
	"sync"
	"time"
)

// Exponential locks an IP out for increasingly long periods. Each time the
// action count reaches the threshold, the IP is locked out for the current
// period and the period is multiplied, up to maxPeriod. Entries reset after
// maxPeriod of inactivity.
type Exponential struct {
	mu      sync.Mutex
	entries map[string]*expEntry

	actions    int
	basePeriod time.Duration
	maxPeriod  time.Duration
	multiplier float64

	now func() time.Time
}

type expEntry struct {
	count      int
	nextPeriod time.Duration
	lockedTill time.Time
	lastAccess time.Time
}

var _ RateLimiter = (*Exponential)(nil)

// NewExponential creates an exponential limiter. actions failures trigger a
// lockout of period, growing by multiplier each cycle up to resetPeriod,
// which is also the inactivity window after which state is forgotten.
func NewExponential(actions int, period time.Duration, multiplier float64, resetPeriod time.Duration) *Exponential {
	return &Exponential{
		entries:    make(map[string]*expEntry),
		actions:    actions,
		basePeriod: period,
		maxPeriod:  resetPeriod,
		multiplier: multiplier,
		now:        time.Now,
	}
}

// get must be called with the mutex held.
func (l *Exponential) get(ip string) *expEntry {
	now := l.now()
	e, ok := l.entries[ip]
	if !ok || now.Sub(e.lastAccess) > l.maxPeriod {
		e = &expEntry{nextPeriod: l.basePeriod}
		l.entries[ip] = e
	}
	e.lastAccess = now
	return e
}

func (l *Exponential) Check(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.get(ip)
	return !e.lockedTill.IsZero() && l.now().Before(e.lockedTill)
}

func (l *Exponential) CheckAndIncrement(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.get(ip)
	limited := !e.lockedTill.IsZero() && l.now().Before(e.lockedTill)
	if !limited {
		l.increment(e)
	}
	return limited
}

func (l *Exponential) Increment(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.increment(l.get(ip))
}

// increment must be called with the mutex held.
func (l *Exponential) increment(e *expEntry) {
	e.count++
	if e.count >= l.actions {
		e.count = 0
		e.lockedTill = l.now().Add(e.nextPeriod)
		e.nextPeriod = time.Duration(float64(e.nextPeriod) * l.multiplier)
		if e.nextPeriod > l.maxPeriod {
			e.nextPeriod = l.maxPeriod
		}
	}
}

// Prune drops entries that have been idle for longer than the reset period.
func (l *Exponential) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for ip, e := range l.entries {
		if now.Sub(e.lastAccess) > l.maxPeriod {
			delete(l.entries, ip)
		}
	}
}
