package admission

import (
	"testing"
	"time"
)

func TestSessionRegistryEnforcesMaxConcurrentSessions(t *testing.T) {
	r := newSessionRegistry(1)

	if err := r.Open("acme", "session-a"); err != nil {
		t.Fatalf("expected first session to open: %v", err)
	}
	if err := r.Open("acme", "session-b"); err == nil {
		t.Fatalf("expected second concurrent session to be rejected")
	}
}

func TestSessionRegistryReopenOfSameSessionIsIdempotent(t *testing.T) {
	r := newSessionRegistry(1)

	if err := r.Open("acme", "session-a"); err != nil {
		t.Fatalf("expected open: %v", err)
	}
	if err := r.Open("acme", "session-a"); err != nil {
		t.Fatalf("expected re-open of the same session to succeed: %v", err)
	}
}

func TestSessionRegistryCloseFreesSlot(t *testing.T) {
	r := newSessionRegistry(1)

	if err := r.Open("acme", "session-a"); err != nil {
		t.Fatalf("expected open: %v", err)
	}
	r.Close("acme", "session-a")
	if err := r.Open("acme", "session-b"); err != nil {
		t.Fatalf("expected slot to be free after close: %v", err)
	}
}

func TestSessionRegistryTracksPublishersIndependently(t *testing.T) {
	r := newSessionRegistry(1)

	if err := r.Open("acme", "session-a"); err != nil {
		t.Fatalf("expected acme open: %v", err)
	}
	if err := r.Open("globex", "session-a"); err != nil {
		t.Fatalf("expected globex to have its own session budget: %v", err)
	}
}

func TestSweepReclaimsStaleSessions(t *testing.T) {
	r := newSessionRegistry(1)

	if err := r.Open("acme", "session-a"); err != nil {
		t.Fatalf("expected open: %v", err)
	}
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)

	r.Sweep(cutoff)
	if err := r.Open("acme", "session-b"); err != nil {
		t.Fatalf("expected sweep to reclaim the stale slot: %v", err)
	}
}
