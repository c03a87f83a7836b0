package gate

import (
	"sync"

	"golang.org/x/time/rate"
)

// sweepThreshold is the limiter count above which idle limiters are dropped.
const sweepThreshold = 10000

// Throttle is a coarse per-client-IP token bucket in front of the session
// limiter.
type Throttle struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewThrottle creates a throttle allowing rps requests per second per IP.
func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether a request from ip may proceed.
func (t *Throttle) Allow(ip string) bool {
	return t.getLimiter(ip).Allow()
}

// getLimiter retrieves or creates the limiter for ip
func (t *Throttle) getLimiter(ip string) *rate.Limiter {
	t.mu.RLock()
	limiter, exists := t.limiters[ip]
	t.mu.RUnlock()
	if exists {
		return limiter
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double check to prevent race condition
	if limiter, exists = t.limiters[ip]; exists {
		return limiter
	}

	if len(t.limiters) >= sweepThreshold {
		t.sweepLocked()
	}

	limiter = rate.NewLimiter(t.limit, t.burst)
	t.limiters[ip] = limiter
	return limiter
}

// Sweep drops idle limiters and returns how many were removed.
func (t *Throttle) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked()
}

// sweepLocked drops limiters whose bucket has refilled; they carry no state.
func (t *Throttle) sweepLocked() int {
	removed := 0
	for ip, l := range t.limiters {
		if l.Tokens() >= float64(t.burst) {
			delete(t.limiters, ip)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (t *Throttle) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.limiters)
}
