package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToMax(t *testing.T) {
	rl := NewRateLimiter(15*time.Minute, 5)
	now := time.Now()

	for i := 1; i <= 5; i++ {
		if !rl.Allow("1.2.3.4", "/login", now) {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("1.2.3.4", "/login", now) {
		t.Fatal("request 6 should be denied")
	}
}

func TestRateLimiterDeniedRequestsStillCount(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 2)
	now := time.Now()

	rl.Allow("ip", "/login", now)
	rl.Allow("ip", "/login", now)

	// Every subsequent request is denied and keeps consuming budget;
	// there is no rollback that would let a later request sneak in.
	for i := 0; i < 10; i++ {
		if rl.Allow("ip", "/login", now.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("request after limit should be denied (attempt %d)", i)
		}
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 2)
	start := time.Now()

	rl.Allow("ip", "/login", start)
	rl.Allow("ip", "/login", start)
	if rl.Allow("ip", "/login", start.Add(30*time.Second)) {
		t.Fatal("third request within the window should be denied")
	}

	// Window has elapsed: the key starts a fresh window with count 1.
	later := start.Add(61 * time.Second)
	if !rl.Allow("ip", "/login", later) {
		t.Fatal("first request of the new window should be allowed")
	}
	if !rl.Allow("ip", "/login", later) {
		t.Fatal("second request of the new window should be allowed")
	}
	if rl.Allow("ip", "/login", later) {
		t.Fatal("third request of the new window should be denied")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	now := time.Now()

	if !rl.Allow("a", "/login", now) {
		t.Fatal("client a should be allowed")
	}
	if !rl.Allow("b", "/login", now) {
		t.Fatal("client b should not share client a's bucket")
	}
	if !rl.Allow("a", "/register", now) {
		t.Fatal("a different route should not share the bucket")
	}
	if rl.Allow("a", "/login", now) {
		t.Fatal("client a on /login is over its budget")
	}
}

func TestRateLimiterConcurrentExactBudget(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 100)
	now := time.Now()

	var allowed, denied int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("10.0.0.1", "/login", now) {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&denied, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != 100 || denied != 100 {
		t.Fatalf("expected exactly 100 allowed and 100 denied, got %d/%d", allowed, denied)
	}
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 10)
	now := time.Now()

	for i := 0; i < 5; i++ {
		rl.Allow(fmt.Sprintf("client-%d", i), "/login", now)
	}
	rl.Allow("fresh", "/login", now.Add(30*time.Second))

	rl.Sweep(now.Add(61 * time.Second))

	rl.mu.Lock()
	remaining := len(rl.buckets)
	rl.mu.Unlock()

	// Only "fresh" still has an unexpired window.
	if remaining != 1 {
		t.Fatalf("expected 1 bucket after sweep, got %d", remaining)
	}

	// A swept key behaves like a brand new one.
	if !rl.Allow("client-0", "/login", now.Add(62*time.Second)) {
		t.Fatal("swept key should be allowed again")
	}
}
