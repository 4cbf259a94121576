package signal

import (
	"sync"
	"time"
)

// CallerRateLimiter bounds inbound RPC requests per caller identity over a
// sliding window.
type CallerRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewCallerRateLimiter returns nil when limit is not positive; a nil limiter allows everything.
func NewCallerRateLimiter(limit int, interval time.Duration) *CallerRateLimiter {
	if limit <= 0 {
		return nil
	}
	return &CallerRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *CallerRateLimiter) Allow(caller string) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[caller]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[caller] = fresh
		return false
	}

	rl.history[caller] = append(fresh, now)
	return true
}
