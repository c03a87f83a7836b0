package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/markus-michalski/osticket-subticket-manager/pkg/session"
)

// rateLimitKey is the session key holding the limiter window.
const rateLimitKey = "ratelimit"

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed bool

	// Set when rejected
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum one.
func (d Decision) RetryAfterSeconds() int {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// windowState is what the limiter persists per session.
type windowState struct {
	Hits          []int64 `json:"hits"`
	CooldownUntil int64   `json:"cooldownUntil,omitempty"`
}

// RateLimiter is a per-session sliding window with a cooldown. Once the
// window is full every request is rejected until the cooldown has passed,
// regardless of how the window drains meanwhile.
type RateLimiter struct {
	store    session.Store
	max      int
	window   time.Duration
	cooldown time.Duration

	// serializes read-modify-write of a window within this process
	mu  sync.Mutex
	now func() time.Time
}

// NewRateLimiter creates a limiter allowing max requests per window.
func NewRateLimiter(store session.Store, max int, window, cooldown time.Duration) *RateLimiter {
	return &RateLimiter{
		store:    store,
		max:      max,
		window:   window,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// WithClock replaces the limiter clock. Intended for tests.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// Check records a request for key and reports whether it may proceed.
func (l *RateLimiter) Check(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, err := l.load(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	if state.CooldownUntil > 0 {
		until := time.Unix(0, state.CooldownUntil)
		if now.Before(until) {
			return Decision{RetryAfter: until.Sub(now)}, nil
		}
		state.CooldownUntil = 0
	}

	cutoff := now.Add(-l.window).UnixNano()
	kept := state.Hits[:0]
	for _, ts := range state.Hits {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	state.Hits = kept

	if len(state.Hits) >= l.max {
		retry := l.cooldown
		if retry > 0 {
			state.CooldownUntil = now.Add(l.cooldown).UnixNano()
		} else {
			// no cooldown configured: wait for the oldest hit to leave the window
			retry = time.Unix(0, state.Hits[0]).Add(l.window).Sub(now)
		}
		if err := l.save(ctx, key, state); err != nil {
			return Decision{}, err
		}
		return Decision{RetryAfter: retry}, nil
	}

	state.Hits = append(state.Hits, now.UnixNano())
	if err := l.save(ctx, key, state); err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true}, nil
}

// Reset forgets the window of key.
func (l *RateLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Clear(ctx, key, rateLimitKey)
}

func (l *RateLimiter) load(ctx context.Context, key string) (windowState, error) {
	var state windowState
	raw, ok, err := l.store.Get(ctx, key, rateLimitKey)
	if err != nil {
		return state, fmt.Errorf("load rate limit window: %w", err)
	}
	if !ok {
		return state, nil
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		// a corrupt window starts over rather than locking the session out
		return windowState{}, nil
	}
	return state, nil
}

func (l *RateLimiter) save(ctx context.Context, key string, state windowState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode rate limit window: %w", err)
	}
	if err := l.store.Set(ctx, key, rateLimitKey, raw, l.window+l.cooldown); err != nil {
		return fmt.Errorf("save rate limit window: %w", err)
	}
	return nil
}
