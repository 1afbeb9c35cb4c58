package app

import (
	"sync"
	"time"

	"github.com/dkeye/ChatCall/internal/domain"
)

// InviteRateLimiter is a per-identity sliding window limiter.
type InviteRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.UserID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewInviteRateLimiter returns nil when limit or interval is not positive;
// a nil limiter allows everything.
func NewInviteRateLimiter(limit int, interval time.Duration) *InviteRateLimiter {
	if limit <= 0 || interval <= 0 {
		return nil
	}
	return &InviteRateLimiter{
		history:  make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *InviteRateLimiter) Allow(uid domain.UserID) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[uid]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[uid] = fresh
		return false
	}

	rl.history[uid] = append(fresh, now)
	return true
}

// Forget drops the history of uid.
func (rl *InviteRateLimiter) Forget(uid domain.UserID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.history, uid)
	rl.mu.Unlock()
}
