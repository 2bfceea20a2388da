package merkle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"oracleflow/internal/domain"
)

type fakeOptionStore struct {
	calls  int32
	prices map[int64][]domain.OptionPrice
}

func (f *fakeOptionStore) ListOptionPricesAtBlock(_ context.Context, _ domain.Network, block int64) ([]domain.OptionPrice, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.prices[block], nil
}

func TestGetProofBuildsAndCachesTree(t *testing.T) {
	store := &fakeOptionStore{prices: map[int64][]domain.OptionPrice{
		100: {opt("BTC", "2024-01-01", 50000, domain.OptionCall, "1.5")},
	}}
	c, err := New(store, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	root, err := c.Root(context.Background(), domain.NetworkMainnet, 100)
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	for i := 0; i < 3; i++ {
		proof, err := c.GetProof(context.Background(), domain.NetworkMainnet, 100, "BTC-2024-01-01-50000-C")
		if err != nil {
			t.Fatalf("get proof: %v", err)
		}
		if !Verify(proof, root) {
			t.Fatalf("expected a valid proof")
		}
	}
	if store.calls != 1 {
		t.Fatalf("expected the tree to be built once and reused, got %d store calls", store.calls)
	}
}

func TestGetProofFailsWhenNotEnoughData(t *testing.T) {
	store := &fakeOptionStore{prices: map[int64][]domain.OptionPrice{}}
	c, err := New(store, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.GetProof(context.Background(), domain.NetworkMainnet, 100, "BTC-2024-01-01-50000-C"); err == nil {
		t.Fatalf("expected an error when there is no priced option data")
	}
}

func TestGetProofFailsForUnknownInstrument(t *testing.T) {
	store := &fakeOptionStore{prices: map[int64][]domain.OptionPrice{
		100: {opt("BTC", "2024-01-01", 50000, domain.OptionCall, "1.5")},
	}}
	c, err := New(store, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.GetProof(context.Background(), domain.NetworkMainnet, 100, "ETH-2024-01-01-3000-P"); err == nil {
		t.Fatalf("expected an error for an instrument absent from the block")
	}
}

func TestTreeForCoalescesConcurrentBuilds(t *testing.T) {
	store := &fakeOptionStore{prices: map[int64][]domain.OptionPrice{
		100: {opt("BTC", "2024-01-01", 50000, domain.OptionCall, "1.5")},
	}}
	c, err := New(store, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Root(context.Background(), domain.NetworkMainnet, 100); err != nil {
				t.Errorf("root: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.calls != 1 {
		t.Fatalf("expected concurrent builds to coalesce into 1 store call, got %d", store.calls)
	}
}

func TestInvalidateForcesRebuild(t *testing.T) {
	store := &fakeOptionStore{prices: map[int64][]domain.OptionPrice{
		100: {opt("BTC", "2024-01-01", 50000, domain.OptionCall, "1.5")},
	}}
	c, err := New(store, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Root(context.Background(), domain.NetworkMainnet, 100); err != nil {
		t.Fatalf("root: %v", err)
	}
	c.Invalidate(domain.NetworkMainnet, 100)
	if _, err := c.Root(context.Background(), domain.NetworkMainnet, 100); err != nil {
		t.Fatalf("root: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("expected invalidate to force a rebuild, got %d store calls", store.calls)
	}
}
