package app

import (
	"time"

	"github.com/dkeye/ChatCall/internal/domain"
)

const throttleSweepAt = 1024

// WarnThrottle lets one warning per key through per window.
// Not safe for concurrent use.
type WarnThrottle struct {
	window time.Duration
	last   map[domain.UserID]time.Time
	now    func() time.Time
}

func NewWarnThrottle(window time.Duration) *WarnThrottle {
	return &WarnThrottle{
		window: window,
		last:   make(map[domain.UserID]time.Time),
		now:    time.Now,
	}
}

func (w *WarnThrottle) Allow(key domain.UserID) bool {
	now := w.now()
	if len(w.last) >= throttleSweepAt {
		for k, t := range w.last {
			if now.Sub(t) >= w.window {
				delete(w.last, k)
			}
		}
	}
	if t, ok := w.last[key]; ok && now.Sub(t) < w.window {
		return false
	}
	w.last[key] = now
	return true
}
