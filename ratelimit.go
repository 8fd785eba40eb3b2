package main

import (
	"context"
	"log"
	"sync"
	"time"
)

// RateLimiter implements fixed-window admission control for the login
// endpoint, keyed by client identifier and route.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	window  time.Duration
	max     int
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a rate limiter allowing max requests per key
// within each fixed window.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*rateBucket),
		window:  window,
		max:     max,
	}
}

// Allow records a request for the given client and route and reports
// whether it is admitted. A denied request still counts against the
// window's budget; the counter is not rolled back on deny.
func (rl *RateLimiter) Allow(clientID, route string, now time.Time) bool {
	key := clientID + "-" + route

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok || !b.resetAt.After(now) {
		// First request for this key, or the previous window has
		// expired. Expired buckets are treated as absent.
		rl.buckets[key] = &rateBucket{count: 1, resetAt: now.Add(rl.window)}
		return true
	}

	b.count++
	return b.count <= rl.max
}

// Sweep removes buckets whose window has expired. Stale buckets are
// harmless (Allow resets them on next access); sweeping only bounds
// memory.
func (rl *RateLimiter) Sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if !b.resetAt.After(now) {
			delete(rl.buckets, key)
		}
	}
}

// StartSweeper runs Sweep on a ticker until the context is cancelled.
func (rl *RateLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("🛑 Rate limiter sweeper stopped")
				return
			case t := <-ticker.C:
				rl.Sweep(t)
			}
		}
	}()
}
