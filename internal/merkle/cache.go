package merkle

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"oracleflow/internal/apierr"
	"oracleflow/internal/domain"
)

// OptionStore is the narrow capability this cache needs from
// internal/store: a bulk read of every priced option at one block.
type OptionStore interface {
	ListOptionPricesAtBlock(ctx context.Context, network domain.Network, block int64) ([]domain.OptionPrice, error)
}

const pendingTTL = 10 * time.Second

// MinOptionsPerBlock is the minimum option count a build requires to be
// cached, per spec.md §4.4's not-enough-data failure.
const MinOptionsPerBlock = 1

type cacheKey struct {
	network domain.Network
	block   int64
}

type cacheEntry struct {
	tree      *Tree
	builtAt   time.Time
	isPending bool
}

// Cache maps (network, block-number) to a built Merkle tree, with the
// pending marker (domain.PendingBlock) forced to refresh every 10s.
type Cache struct {
	store OptionStore
	lru   *lru.Cache[cacheKey, *cacheEntry]
	group singleflight.Group
	mu    sync.Mutex
}

// New builds a Cache with the given store and bounded capacity.
func New(store OptionStore, capacity int) (*Cache, error) {
	c, err := lru.New[cacheKey, *cacheEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("merkle: new lru: %w", err)
	}
	return &Cache{store: store, lru: c}, nil
}

// GetProof implements spec.md §4.4's get_proof contract.
func (c *Cache) GetProof(ctx context.Context, network domain.Network, block int64, instrument string) (Proof, error) {
	tree, err := c.treeFor(ctx, network, block)
	if err != nil {
		return Proof{}, err
	}
	proof, ok := tree.ProofFor(instrument)
	if !ok {
		return Proof{}, apierr.NotFound(fmt.Sprintf("instrument %q not priced at this block", instrument))
	}
	return proof, nil
}

func (c *Cache) treeFor(ctx context.Context, network domain.Network, block int64) (*Tree, error) {
	key := cacheKey{network: network, block: block}

	c.mu.Lock()
	if e, ok := c.lru.Get(key); ok {
		fresh := !e.isPending || time.Since(e.builtAt) < pendingTTL
		c.mu.Unlock()
		if fresh {
			return e.tree, nil
		}
	} else {
		c.mu.Unlock()
	}

	sfKey := fmt.Sprintf("%s:%d", network, block)
	v, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		c.mu.Lock()
		if e, ok := c.lru.Get(key); ok && (!e.isPending || time.Since(e.builtAt) < pendingTTL) {
			c.mu.Unlock()
			return e.tree, nil
		}
		c.mu.Unlock()

		prices, err := c.store.ListOptionPricesAtBlock(ctx, network, block)
		if err != nil {
			return nil, apierr.Transient(err)
		}
		if len(prices) < MinOptionsPerBlock {
			return nil, apierr.NotFound("not enough option data to build a proof at this block")
		}
		tree := Build(prices)

		c.mu.Lock()
		c.lru.Add(key, &cacheEntry{tree: tree, builtAt: time.Now(), isPending: block == domain.PendingBlock})
		c.mu.Unlock()

		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tree), nil
}

// GetProofByHash is GetProof's counterpart for spec.md §6's
// `/node/merkle_feeds/proof/{option_hash}` route, which identifies the
// leaf by its hash rather than its instrument.
func (c *Cache) GetProofByHash(ctx context.Context, network domain.Network, block int64, leafHash []byte) (Proof, error) {
	tree, err := c.treeFor(ctx, network, block)
	if err != nil {
		return Proof{}, err
	}
	proof, ok := tree.ProofForLeafHash(leafHash)
	if !ok {
		return Proof{}, apierr.NotFound("no leaf with that hash at this block")
	}
	return proof, nil
}

// Root returns just the root hash for (network, block), building and
// caching the tree as a side effect if this is the first request for it.
// Used by internal/realtime's Merkle-feed channel, which streams roots
// without needing any single instrument's proof.
func (c *Cache) Root(ctx context.Context, network domain.Network, block int64) ([]byte, error) {
	tree, err := c.treeFor(ctx, network, block)
	if err != nil {
		return nil, err
	}
	return tree.Root(), nil
}

// Invalidate drops a cached tree, used when a new block's data supersedes
// the pending marker.
func (c *Cache) Invalidate(network domain.Network, block int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(cacheKey{network: network, block: block})
}
