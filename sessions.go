package main

import (
	"context"
	"log"
	"sync"
	"time"
)

// SessionRegistry tracks the active sessions of each user so the login
// handler can refuse new sign-ins past the concurrent-session cap. It is
// advisory, in-memory state: the identity provider remains the
// authoritative record, and a restart simply starts the registry empty.
type SessionRegistry struct {
	mu          sync.Mutex
	entries     map[string]*sessionEntry
	idleTimeout time.Duration
}

type sessionEntry struct {
	sessionIDs   map[string]struct{}
	lastActivity time.Time
}

// NewSessionRegistry creates a registry that considers a user abandoned
// after idleTimeout without activity.
func NewSessionRegistry(idleTimeout time.Duration) *SessionRegistry {
	return &SessionRegistry{
		entries:     make(map[string]*sessionEntry),
		idleTimeout: idleTimeout,
	}
}

// ActiveCount returns the number of sessions currently tracked for the
// user, zero when the user has no entry.
func (sr *SessionRegistry) ActiveCount(userID string) int {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	e, ok := sr.entries[userID]
	if !ok {
		return 0
	}
	return len(e.sessionIDs)
}

// Track records a session for the user and refreshes the user's activity
// timestamp. Tracking an already-known session id is a no-op apart from
// the refresh.
func (sr *SessionRegistry) Track(userID, sessionID string, now time.Time) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	e, ok := sr.entries[userID]
	if !ok {
		e = &sessionEntry{sessionIDs: make(map[string]struct{})}
		sr.entries[userID] = e
	}
	e.sessionIDs[sessionID] = struct{}{}
	e.lastActivity = now
}

// Remove forgets a session. When the last session of a user is removed
// the whole entry is deleted; an entry never exists with an empty set.
func (sr *SessionRegistry) Remove(userID, sessionID string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	e, ok := sr.entries[userID]
	if !ok {
		return
	}
	delete(e.sessionIDs, sessionID)
	if len(e.sessionIDs) == 0 {
		delete(sr.entries, userID)
	}
}

// Active reports whether the session is still tracked, refreshing the
// user's activity timestamp on a hit. Sessions dropped by Remove or
// Sweep are gone for good; callers must not re-Track them here.
func (sr *SessionRegistry) Active(userID, sessionID string, now time.Time) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	e, ok := sr.entries[userID]
	if !ok {
		return false
	}
	if _, ok := e.sessionIDs[sessionID]; !ok {
		return false
	}
	e.lastActivity = now
	return true
}

// Sweep evicts every user idle longer than the configured timeout,
// regardless of how many sessions the entry holds: an idle user's
// sessions are presumed abandoned.
func (sr *SessionRegistry) Sweep(now time.Time) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	for userID, e := range sr.entries {
		if now.Sub(e.lastActivity) > sr.idleTimeout {
			delete(sr.entries, userID)
		}
	}
}

// StartSweeper runs Sweep on a ticker until the context is cancelled.
func (sr *SessionRegistry) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("🛑 Session sweeper stopped")
				return
			case t := <-ticker.C:
				sr.Sweep(t)
			}
		}
	}()
}
