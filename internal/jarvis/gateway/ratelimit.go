package gateway

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the number of completion calls a user may make per
	// window when no explicit limit is configured.
	DefaultRateLimit = 20

	defaultRateLimitWindow = time.Minute
)

// RateLimiter enforces a per-user sliding-window limit on completion calls.
//
// It keeps the call timestamps for each user within the current window and
// prunes stale entries on every call, so memory stays O(limit) per active
// user. RateLimiter is safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	counters map[int64][]time.Time
}

// NewRateLimiter returns a limiter allowing at most limit calls per user
// within window. Non-positive values take the defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[int64][]time.Time),
	}
}

// Allow records a call for userID and reports whether it is within quota.
// A nil limiter allows everything.
func (r *RateLimiter) Allow(userID int64) bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	valid := r.prune(userID, now)
	if len(valid) >= r.limit {
		r.counters[userID] = valid
		return false
	}
	r.counters[userID] = append(valid, now)
	return true
}

// Remaining returns how many calls userID may still make in the window.
func (r *RateLimiter) Remaining(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	valid := r.prune(userID, r.now())
	if len(valid) == 0 {
		delete(r.counters, userID)
	} else {
		r.counters[userID] = valid
	}
	return max(r.limit-len(valid), 0)
}

func (r *RateLimiter) prune(userID int64, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	existing := r.counters[userID]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}
