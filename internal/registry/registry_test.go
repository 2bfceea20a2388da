package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"oracleflow/internal/domain"
)

type fakeStore struct {
	calls int32
	pubs  map[string]*domain.Publisher
}

func (f *fakeStore) GetPublisher(_ context.Context, name string) (*domain.Publisher, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.pubs[name], nil
}

func TestLookupCachesPositiveResult(t *testing.T) {
	store := &fakeStore{pubs: map[string]*domain.Publisher{
		"acme": {Name: "acme"},
	}}
	c, err := New(store, 10, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for i := 0; i < 3; i++ {
		pub, err := c.Lookup(context.Background(), "acme")
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if pub == nil || pub.Name != "acme" {
			t.Fatalf("expected acme publisher, got %v", pub)
		}
	}
	if store.calls != 1 {
		t.Fatalf("expected exactly 1 store call, got %d", store.calls)
	}
}

func TestLookupCachesNegativeResult(t *testing.T) {
	store := &fakeStore{pubs: map[string]*domain.Publisher{}}
	c, err := New(store, 10, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	pub, err := c.Lookup(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if pub != nil {
		t.Fatalf("expected nil for an unknown publisher")
	}

	pub, err = c.Lookup(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if pub != nil {
		t.Fatalf("expected cached nil for an unknown publisher")
	}
	if store.calls != 1 {
		t.Fatalf("expected the negative result to be cached, got %d store calls", store.calls)
	}
}

func TestLookupCoalescesConcurrentMisses(t *testing.T) {
	store := &fakeStore{pubs: map[string]*domain.Publisher{
		"acme": {Name: "acme"},
	}}
	c, err := New(store, 10, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Lookup(context.Background(), "acme"); err != nil {
				t.Errorf("lookup: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.calls != 1 {
		t.Fatalf("expected concurrent misses to coalesce into 1 store call, got %d", store.calls)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	store := &fakeStore{pubs: map[string]*domain.Publisher{
		"acme": {Name: "acme"},
	}}
	c, err := New(store, 10, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := c.Lookup(context.Background(), "acme"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	c.Invalidate("acme")
	if _, err := c.Lookup(context.Background(), "acme"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("expected invalidate to force a second store call, got %d", store.calls)
	}
}
