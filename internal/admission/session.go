package admission

import (
	"sync"
	"time"

	"oracleflow/internal/apierr"
)

// sessionRegistry enforces the one-session-per-publisher rule spec.md §4.1
// step 2 calls for: a publisher may hold at most PublisherMaxSessions
// concurrent admission connections (HTTP keep-alive batch or WS stream)
// before further connect attempts are rejected.
type sessionRegistry struct {
	mu       sync.Mutex
	max      int
	sessions map[string]map[string]time.Time // publisher -> sessionID -> lastSeen
}

func newSessionRegistry(max int) *sessionRegistry {
	return &sessionRegistry{max: max, sessions: make(map[string]map[string]time.Time)}
}

// Open registers sessionID for publisher, rejecting it with
// apierr.Unauthorized if doing so would exceed max concurrent sessions.
func (r *sessionRegistry) Open(publisher, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[publisher]
	if !ok {
		set = make(map[string]time.Time)
		r.sessions[publisher] = set
	}
	if _, exists := set[sessionID]; !exists && len(set) >= r.max {
		return apierr.Unauthorized("publisher has reached its concurrent session limit")
	}
	set[sessionID] = time.Now()
	return nil
}

// Close releases sessionID. Safe to call even if Open was never called for
// it.
func (r *sessionRegistry) Close(publisher, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.sessions[publisher]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.sessions, publisher)
		}
	}
}

// Sweep drops sessions untouched since before cutoff, reclaiming slots from
// connections that died without a clean close.
func (r *sessionRegistry) Sweep(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pub, set := range r.sessions {
		for id, last := range set {
			if last.Before(cutoff) {
				delete(set, id)
			}
		}
		if len(set) == 0 {
			delete(r.sessions, pub)
		}
	}
}
