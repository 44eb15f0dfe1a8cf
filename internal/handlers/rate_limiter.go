package handlers

import (
	"strings"
	"sync"
	"time"
)

// attemptLimiter caps how many times a caller may hit a guarded endpoint
// within a sliding window. It backs the coupon validation throttle so codes
// cannot be enumerated by brute force.
type attemptLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]attemptEntry
}

type attemptEntry struct {
	count int
	reset time.Time
}

func newAttemptLimiter(limit int, window time.Duration, clock func() time.Time) *attemptLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &attemptLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]attemptEntry),
	}
}

// Allow reports whether the caller identified by key may proceed. A nil
// limiter allows everything.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || now.After(entry.reset) {
		l.store[key] = attemptEntry{count: 1, reset: now.Add(l.window)}
		l.pruneExpiredLocked(now)
		return true
	}

	if entry.count >= l.limit {
		return false
	}
	entry.count++
	l.store[key] = entry
	return true
}

func (l *attemptLimiter) pruneExpiredLocked(now time.Time) {
	if len(l.store) == 0 {
		return
	}
	for key, entry := range l.store {
		if now.After(entry.reset) {
			delete(l.store, key)
		}
	}
}
