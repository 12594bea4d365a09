package access

import (
	"sync"
	"time"
)

type rateWindow struct {
	count int
	start time.Time
}

// RateLimiter is a fixed-window message counter keyed by user ID.
// Windows for inactive users are never pruned; the state stays
// O(distinct users seen), which is acceptable at bot scale.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[int64]*rateWindow
}

// NewRateLimiter creates a limiter allowing limit messages per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[int64]*rateWindow),
	}
}

// Allow consumes one slot from the user's current window and reports
// whether the message is within the limit. An expired window is replaced
// by a fresh one counting this message.
func (l *RateLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[userID]
	if w == nil || now.Sub(w.start) >= l.window {
		l.windows[userID] = &rateWindow{count: 1, start: now}
		return true
	}

	w.count++
	return w.count <= l.limit
}
