package ratelimit

import (
	"net/http"
	"testing"
)

func TestAllowExhaustsBurstThenRejects(t *testing.T) {
	l := New(map[RouteClass]Limits{ClassPublic: {RPS: 1, Burst: 2}})

	ok, _ := l.Allow("alice", ClassPublic)
	if !ok {
		t.Fatalf("expected first request to be allowed")
	}
	ok, _ = l.Allow("alice", ClassPublic)
	if !ok {
		t.Fatalf("expected second request (within burst) to be allowed")
	}
	ok, wait := l.Allow("alice", ClassPublic)
	if ok {
		t.Fatalf("expected third request to exceed burst")
	}
	if wait <= 0 {
		t.Fatalf("expected a positive retry-after delay, got %v", wait)
	}
}

func TestAllowTracksPrincipalsIndependently(t *testing.T) {
	l := New(map[RouteClass]Limits{ClassPublic: {RPS: 1, Burst: 1}})

	if ok, _ := l.Allow("alice", ClassPublic); !ok {
		t.Fatalf("expected alice's first request to be allowed")
	}
	if ok, _ := l.Allow("alice", ClassPublic); ok {
		t.Fatalf("expected alice's second request to be rejected")
	}
	if ok, _ := l.Allow("bob", ClassPublic); !ok {
		t.Fatalf("expected bob to have his own independent bucket")
	}
}

func TestAllowTracksRouteClassesIndependently(t *testing.T) {
	l := New(map[RouteClass]Limits{
		ClassPublic:  {RPS: 1, Burst: 1},
		ClassPublish: {RPS: 1, Burst: 1},
	})

	if ok, _ := l.Allow("alice", ClassPublic); !ok {
		t.Fatalf("expected public request to be allowed")
	}
	if ok, _ := l.Allow("alice", ClassPublish); !ok {
		t.Fatalf("expected publish request on the same principal to have its own budget")
	}
}

func TestPrincipalPrefersAPIKeyOverIP(t *testing.T) {
	r := &http.Request{Header: http.Header{"X-Api-Key": []string{"secret"}}, RemoteAddr: "10.0.0.1:4321"}
	if got := Principal(r); got != "key:secret" {
		t.Fatalf("expected key:secret, got %q", got)
	}
}

func TestPrincipalFallsBackToIPWithoutPort(t *testing.T) {
	r := &http.Request{Header: http.Header{}, RemoteAddr: "10.0.0.1:4321"}
	if got := Principal(r); got != "ip:10.0.0.1" {
		t.Fatalf("expected ip:10.0.0.1, got %q", got)
	}
}
